package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ammScope/internal/routing"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	offer, _ := cmd.Flags().GetString("offer")
	ask, _ := cmd.Flags().GetString("ask")
	raw, _ := cmd.Flags().GetString("amount")
	if offer == "" || ask == "" {
		return fmt.Errorf("offer and ask are required")
	}

	var amountIn *decimal.Decimal
	if raw = strings.TrimSpace(raw); raw != "" {
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("parse amount: %w", err)
		}
		amountIn = &amt
	}

	ctx := context.Background()
	env, err := openQuery(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	engine := routing.NewEngine(routing.Config{NativeDenom: env.cfg.NativeDenom}, env.store, env.rates, env.logger)
	res, err := engine.Quote(ctx, offer, ask, amountIn)
	if err != nil {
		return err
	}
	if res.Route == nil {
		env.logger.Warn("no liquidity for pair")
	}
	return writeJSON(cmd.OutOrStdout(), res)
}
