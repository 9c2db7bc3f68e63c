package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytclip/internal/repositories"
	"github.com/desertthunder/ytclip/internal/shared"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file or initialize the completion store",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration (never overwrites)",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Create the completion store and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "cache",
						Usage:   "Directory for the completion store",
						Sources: cli.EnvVars(shared.EnvPrefix + "CACHE"),
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the most recent schema migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// SetupConfig writes the embedded example config to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = cmd.String("config")
	}
	if path == "" {
		path = shared.DefaultConfigPath
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)
	return r.writePlain("%s %s\n", r.palette.OK("✓ Wrote"), path)
}

// SetupDatabase initializes the database and runs migrations, or rolls back the latest one.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	path := config.StorePath()
	if cmd.Bool("rollback") {
		return r.rollbackDatabase(ctx, config)
	}
	r.logger.Info("initializing database", "path", path)

	store, err := repositories.OpenCompletionStore(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer store.Close()

	r.logger.Infof("setup complete for database: %v", path)
	return r.writePlain("%s %s\n", r.palette.OK("✓ Completion store ready:"), path)
}

func (r *Runner) rollbackDatabase(ctx context.Context, config *shared.Config) error {
	path := config.StorePath()
	lock, err := shared.AcquireRunLock(config.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	db, err := shared.NewDatabase(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(ctx, db); err != nil {
		return fmt.Errorf("failed to roll back: %w", err)
	}
	version, err := shared.CurrentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	r.logger.Warn("rolled back schema migration", "path", path, "version", version)
	return r.writePlain("%s %s (schema version %d)\n", r.palette.Warn("↺ Rolled back"), path, version)
}
