package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// queryLogHook logs every statement at debug level through the logger on
// the query's context, so statements run by a pass carry its job id.
type queryLogHook struct{}

func (queryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (queryLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	data := logger.Data{"duration": time.Since(event.StartTime).String()}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		data["error"] = event.Err.Error()
	}
	logger.FromContext(ctx).Debug(event.Query, data)
}

func New(cfg *config.Config) (*bun.DB, error) {
	drv, ok := sqliteshim.Driver().(driver.DriverContext)
	if !ok {
		return nil, errors.New("sqlite driver does not support OpenConnector")
	}
	connector, err := drv.OpenConnector(cfg.DatabaseFilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sqldb := sql.OpenDB(&busyConnector{Connector: connector, policy: newBackoff(cfg.DatabaseMaxRetries)})
	// A single connection serializes writers, and keeps an in-memory database
	// from being split across connections.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if cfg.DatabaseDebug {
		db.AddQueryHook(queryLogHook{})
	}

	for i := 0; i <= cfg.DatabaseConnectRetryCount; i++ {
		_, err = db.Exec("SELECT 1")
		if err == nil {
			break
		}
		time.Sleep(cfg.DatabaseConnectRetryDelay)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, errors.Wrapf(err, "failed to run %q", p)
		}
	}

	_, err = db.Exec("PRAGMA busy_timeout=?", cfg.DatabaseBusyTimeout.Milliseconds())
	if err != nil {
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}

	return db, nil
}
