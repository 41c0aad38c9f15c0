package main

import (
	"context"
	"fmt"

	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example config to the given path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		path = "config.toml"
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Wrote %s\n", path)
	r.writePlain("Fill in credentials.google and server.callback_secret, or set NMA_* variables in .env\n")
	return nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.config.Store.Driver == "redis" {
		r.logger.Info("redis store needs no migrations", "url", shared.MaskSecret(r.config.Redis.URL))
		return r.writePlain("✓ Store driver is redis, nothing to migrate\n")
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupMigrations lists migrations, optionally rolling back the newest one first.
func (r *Runner) SetupMigrations(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
		r.logger.Info("rolled back latest migration")
	}

	statuses, err := shared.Migrations(db)
	if err != nil {
		return err
	}

	return r.emit(cmd, statuses, func() error {
		for _, s := range statuses {
			mark := "✗"
			if s.Applied {
				mark = "✓"
			}
			r.writePlain("%s %04d %s\n", mark, s.Version, s.Name)
		}
		return nil
	})
}
