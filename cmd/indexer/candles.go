package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ammScope/internal/config"
	"ammScope/internal/ohlcv"
)

func runCandles(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	env, err := openQuery(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	pool, _ := cmd.Flags().GetString("pool")
	token, _ := cmd.Flags().GetString("token")
	timeframe, _ := cmd.Flags().GetString("timeframe")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	mode, _ := cmd.Flags().GetString("mode")
	unit, _ := cmd.Flags().GetString("unit")
	fill, _ := cmd.Flags().GetString("fill")

	tf, err := ohlcv.ParseTimeframe(timeframe)
	if err != nil {
		return err
	}
	to, err := config.ParseTime(until)
	if err != nil {
		return fmt.Errorf("parse until: %w", err)
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from, err := config.ParseTime(since)
	if err != nil {
		return fmt.Errorf("parse since: %w", err)
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}

	agg := ohlcv.New(ohlcv.Config{NativeDenom: env.cfg.NativeDenom}, env.store, env.supply, env.rates, env.logger)
	candles, err := agg.GetCandles(ctx, ohlcv.Query{
		Scope:     ohlcv.Scope{Pool: pool, Token: token},
		Timeframe: tf,
		From:      from,
		To:        to,
		Mode:      ohlcv.Mode(mode),
		Unit:      ohlcv.Unit(unit),
		Fill:      ohlcv.Fill(fill),
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), candles)
}
