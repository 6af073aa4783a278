package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammScope/internal/config"
	"ammScope/internal/ohlcv"
	"ammScope/internal/storage/postgres"
)

// queryEnv bundles what the read-side commands share.
type queryEnv struct {
	cfg    config.QueryConfig
	logger *zap.Logger
	store  *postgres.Store
	rates  ohlcv.RateSource
	supply ohlcv.SupplySource
	close  func()
}

func openQuery(ctx context.Context, cmd *cobra.Command) (*queryEnv, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuery(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN, 4)
	if err != nil {
		return nil, err
	}

	env := &queryEnv{
		cfg:    cfg,
		logger: logger,
		store:  store,
		supply: ohlcv.StaticSupply(cfg.Supply),
	}
	closers := []func(){store.Close}

	switch {
	case cfg.NativeUSD.IsPositive():
		env.rates = ohlcv.StaticRate(cfg.NativeUSD)
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func() { _ = rdb.Close() })
		env.rates = ohlcv.NewRedisRate(rdb, cfg.RateKey)
	}

	env.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		_ = logger.Sync()
	}
	return env, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
