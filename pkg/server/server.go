package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bookferry/bookferry/pkg/binder"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/downloads"
	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/joblogs"
	"github.com/bookferry/bookferry/pkg/jobs"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

// Trigger starts a pass outside the schedule.
type Trigger interface {
	Trigger(reason string) bool
}

func New(cfg *config.Config, db *bun.DB, trigger Trigger) (*http.Server, error) {
	e, err := newEcho(cfg, db, trigger)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(cfg *config.Config, db *bun.DB, trigger Trigger) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	passes := e.Group("/passes")
	jobs.RegisterRoutesWithGroup(passes, db, trigger)

	reqs := e.Group("/requests")
	requests.RegisterRoutesWithGroup(reqs, db, cfg, trigger)

	joblogs.RegisterRoutes(passes, reqs, db)
	downloads.RegisterRoutes(e, db)
	config.RegisterRoutes(e, cfg)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
