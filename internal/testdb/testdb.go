// Package testdb opens a migrated in-memory database for tests.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/bookferry/bookferry/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// New returns a bun.DB backed by a fresh in-memory SQLite database with all
// migrations applied. The database is closed when the test finishes.
func New(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
