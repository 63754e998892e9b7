package main

import (
	"context"
	"net"
	"net/http"

	"github.com/bookferry/bookferry/pkg/backends"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/database"
	"github.com/bookferry/bookferry/pkg/importer"
	"github.com/bookferry/bookferry/pkg/migrations"
	"github.com/bookferry/bookferry/pkg/notify"
	"github.com/bookferry/bookferry/pkg/postprocess"
	"github.com/bookferry/bookferry/pkg/server"
	"github.com/bookferry/bookferry/pkg/version"
	"github.com/bookferry/bookferry/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting bookferry", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	registry, err := backends.NewRegistry(cfg)
	if err != nil {
		log.Err(err).Fatal("backend error")
	}
	processor := postprocess.New(cfg, db, registry, notify.New(cfg.Notify), importer.New(cfg))
	wrkr := worker.New(cfg, db, processor)

	if err := wrkr.Start(); err != nil {
		log.Err(err).Fatal("worker error")
	}
	log.Info("worker started", logger.Data{"lock": worker.LockPath(cfg)})

	srv, err := server.New(cfg, db, wrkr)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String()})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
