package joblogs

import (
	"github.com/bookferry/bookferry/pkg/jobs"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes adds the log endpoints: one pass's log, and everything any
// pass logged about one request.
func RegisterRoutes(passes, reqs *echo.Group, db *bun.DB) {
	h := &handler{
		jobLogService:  NewService(db),
		jobService:     jobs.NewService(db),
		requestService: requests.NewService(db),
	}

	passes.GET("/:id/logs", h.listPassLogs)
	reqs.GET("/:id/logs", h.listRequestLogs)
}
