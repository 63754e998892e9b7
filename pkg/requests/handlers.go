package requests

import (
	"net/http"
	"strconv"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Trigger starts a pass outside the schedule.
type Trigger interface {
	Trigger(reason string) bool
}

type handler struct {
	config         *config.Config
	requestService *Service
	trigger        Trigger
}

// create registers a snatch made elsewhere and starts a pass so the
// scheduler resumes if it was idle.
func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateRequestPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if _, ok := h.config.Backend(params.Backend); !ok {
		return errcodes.ValidationError(strconv.Quote(params.Backend) + " is not a configured backend")
	}

	req := &models.Request{
		ItemID:      params.ItemID,
		Title:       params.Title,
		MediaKind:   params.MediaKind,
		Provider:    params.Provider,
		Backend:     params.Backend,
		Mode:        params.Mode,
		Handle:      params.Handle,
		DownloadURL: params.DownloadURL,
		AuxInfo:     params.AuxInfo,
	}
	if err := h.requestService.CreateRequest(ctx, req); err != nil {
		return errors.WithStack(err)
	}

	h.trigger.Trigger(models.TriggerSnatch)

	return errors.WithStack(c.JSON(http.StatusCreated, req))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Request")
	}

	req, err := h.requestService.RetrieveRequest(ctx, RetrieveRequestOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, req))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListRequestsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	reqs, total, err := h.requestService.ListRequestsWithTotal(ctx, ListRequestsOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		Statuses:  params.Status,
		MediaKind: params.MediaKind,
		ItemID:    params.ItemID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Requests []*models.Request `json:"requests"`
		Total    int               `json:"total"`
	}{reqs, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
