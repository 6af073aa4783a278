package main

import (
	"context"

	"github.com/spf13/cobra"

	"ammScope/internal/config"
	"ammScope/internal/storage/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuery(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := postgres.NewStore(ctx, cfg.PGDSN, 2)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx, logger); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}
