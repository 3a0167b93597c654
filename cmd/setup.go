package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/t2r/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the template config to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	if cmd.Bool("force") {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to replace config file: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n", path)
	return r.writePlain("Edit [calendar] and [destination], then run: t2r doctor\n")
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, closeDB, err := r.openDatabase()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer closeDB()

	states, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	for _, s := range states {
		mark := "✓"
		if !s.Applied {
			mark = "✗"
		}
		r.writePlain("  %s %04d %s\n", mark, s.Version, s.Name)
	}
	return nil
}
