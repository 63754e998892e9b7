package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	configService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.configService.RetrieveConfig()))
}
