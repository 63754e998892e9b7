package requests

import (
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, cfg *config.Config, trigger Trigger) {
	h := &handler{
		config:         cfg,
		requestService: NewService(db),
		trigger:        trigger,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("", h.create)
}
