package jobs

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers pass routes on g.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, trigger Trigger) {
	h := &handler{
		jobService: NewService(db),
		trigger:    trigger,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("", h.create)
}
