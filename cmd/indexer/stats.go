package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ammScope/internal/config"
	"ammScope/internal/stats"
)

func runStats(cmd *cobra.Command, _ []string) error {
	pool, _ := cmd.Flags().GetString("pool")
	window, _ := cmd.Flags().GetDuration("window")
	until, _ := cmd.Flags().GetString("until")
	if pool == "" {
		return fmt.Errorf("pool is required")
	}

	end, err := config.ParseTime(until)
	if err != nil {
		return fmt.Errorf("parse until: %w", err)
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}

	ctx := context.Background()
	env, err := openQuery(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	m, err := stats.New(env.store, env.logger).PoolWindow(ctx, pool, window, end)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), m)
}
