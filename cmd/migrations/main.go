package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/database"
	"github.com/bookferry/bookferry/pkg/migrations"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)

	app := &cli.App{
		Name:  "migrations",
		Usage: "manage the bookferry database schema",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					return migrator.Init(c.Context)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply pending migrations",
				Action: func(c *cli.Context) error {
					if err := migrator.Init(c.Context); err != nil {
						return err
					}
					group, err := migrator.Migrate(c.Context)
					if err != nil {
						return err
					}
					if group.IsZero() {
						fmt.Println("Schema is up to date")
						return nil
					}
					fmt.Printf("Migrated to %s\n", group)
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "roll back the last migration group",
				Action: func(c *cli.Context) error {
					group, err := migrator.Rollback(c.Context)
					if err != nil {
						return err
					}
					if group.IsZero() {
						fmt.Println("Nothing to roll back")
						return nil
					}
					fmt.Printf("Rolled back %s\n", group)
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "create a Go migration",
				ArgsUsage: "<words describing the change>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("a migration name is required", 1)
					}
					name := strings.Join(c.Args().Slice(), "_")
					mf, err := migrator.CreateGoMigration(c.Context, name, migrate.WithGoTemplate(migrationTemplate))
					if err != nil {
						return err
					}
					fmt.Printf("Created %s (%s)\n", mf.Name, mf.Path)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print applied and pending migrations",
				Action: func(c *cli.Context) error {
					ms, err := migrator.MigrationsWithStatus(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Applied: %s\n", ms.Applied())
					fmt.Printf("Pending: %s\n", ms.Unapplied())
					fmt.Printf("Last group: %s\n", ms.LastGroup())
					return nil
				},
			},
			{
				Name:  "unlock",
				Usage: "release a migration lock left by a crashed run",
				Action: func(c *cli.Context) error {
					return migrator.Unlock(c.Context)
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("migrations error")
	}
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
