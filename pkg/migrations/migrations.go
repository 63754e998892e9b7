// Package migrations holds the schema history as Go migrations.
package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// BringUpToDate applies every pending migration. The daemon and
// bookferryctl both call it on start, so the run is serialized through the
// migrator's lock table.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "schema is being migrated by another process")
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			logger.FromContext(ctx).Err(err).Warn("failed to release migration lock")
		}
	}()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}
