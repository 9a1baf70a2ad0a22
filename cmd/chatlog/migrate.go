package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/db"
)

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadBase()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := db.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
		return err
	}
	return printVersion(cmd, cfg.DatabaseURL, logger)
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	if migrateSteps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}
	cfg, logger, err := loadBase()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := db.Rollback(cmd.Context(), cfg.DatabaseURL, migrateSteps); err != nil {
		return err
	}
	return printVersion(cmd, cfg.DatabaseURL, logger)
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadBase()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return printVersion(cmd, cfg.DatabaseURL, logger)
}

func printVersion(cmd *cobra.Command, dsn string, logger *zap.Logger) error {
	version, err := db.MigrationVersion(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	logger.Info("schema version", zap.Int64("version", version))
	fmt.Fprintln(cmd.OutOrStdout(), version)
	return nil
}
