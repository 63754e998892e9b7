package downloads

import (
	"net/http"

	"github.com/bookferry/bookferry/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	downloadService *Service
}

// list returns the per-provider counters, busiest first.
func (h *handler) list(c echo.Context) error {
	counts, err := h.downloadService.ListCounts(c.Request().Context())
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Providers []*models.DownloadCount `json:"providers"`
	}{counts}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
