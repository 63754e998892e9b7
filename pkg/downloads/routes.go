package downloads

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	h := &handler{downloadService: NewService(db)}

	e.GET("/downloads", h.list)
}
