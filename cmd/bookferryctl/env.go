package main

import (
	"context"

	"github.com/bookferry/bookferry/pkg/backends"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/database"
	"github.com/bookferry/bookferry/pkg/importer"
	"github.com/bookferry/bookferry/pkg/migrations"
	"github.com/bookferry/bookferry/pkg/notify"
	"github.com/bookferry/bookferry/pkg/postprocess"
	"github.com/bookferry/bookferry/pkg/worker"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// env is what every subcommand needs: a loaded config and a migrated
// database.
type env struct {
	cfg *config.Config
	db  *bun.DB
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	db, err := database.New(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := migrations.BringUpToDate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &env{cfg: cfg, db: db}, nil
}

func (e *env) Close() error {
	return errors.WithStack(e.db.Close())
}

func (e *env) worker() (*worker.Worker, error) {
	registry, err := backends.NewRegistry(e.cfg)
	if err != nil {
		return nil, err
	}
	processor := postprocess.New(e.cfg, e.db, registry, notify.New(e.cfg.Notify), importer.New(e.cfg))
	return worker.New(e.cfg, e.db, processor), nil
}
