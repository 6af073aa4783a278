package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammScope/internal/chain"
	"ammScope/internal/config"
	"ammScope/internal/directory"
	"ammScope/internal/events"
	"ammScope/internal/ingest"
	"ammScope/internal/metadata"
	"ammScope/internal/metrics"
	"ammScope/internal/notify"
	"ammScope/internal/push"
	"ammScope/internal/storage"
	"ammScope/internal/storage/clickhouse"
	"ammScope/internal/storage/memory"
	"ammScope/internal/storage/postgres"
)

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRun(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		shared     directory.SharedCache
		publishers notify.Multi
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		shared = directory.NewRedisCache(rdb, cfg.RedisPrefix, cfg.PoolCacheTTL)
		publishers = append(publishers, notify.NewRedisPublisher(rdb, cfg.RedisPrefix))
	}
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, cfg.NATSPrefix, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		publishers = append(publishers, nc)
	}

	var sinks []storage.TradeSink
	if cfg.TradesOut != "" {
		sinks = append(sinks, storage.NewJsonlSink(cfg.TradesOut))
	}
	if cfg.ClickHouseDSN != "" {
		conn, err := clickhouse.Open(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return err
		}
		sink := clickhouse.NewSink(conn, clickhouse.Config{
			DSN:          cfg.ClickHouseDSN,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, logger.Named("clickhouse"))
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sink.Close(closeCtx); err != nil {
				logger.Warn("clickhouse sink close failed", zap.Error(err))
			}
		}()
		sinks = append(sinks, sink)
	}

	m := metrics.NewIngest(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	opts := []ingest.Option{
		ingest.WithMetrics(m),
		ingest.WithSinks(sinks...),
		ingest.WithMetadata(metadata.NewQueue(metadata.StoreEnricher{Store: store}, cfg.MetadataCeiling, logger.Named("metadata"))),
	}
	if len(publishers) > 0 {
		opts = append(opts, ingest.WithPublisher(publishers))
		if cfg.PushSpec != "" {
			loop := push.New(store, publishers, logger.Named("push"))
			if err := loop.Start(ctx, cfg.PushSpec); err != nil {
				return err
			}
			defer loop.Stop()
			opts = append(opts, ingest.WithToucher(loop))
		}
	}

	extractor := events.NewExtractor(events.Config{
		Factory:     cfg.Factory,
		Router:      cfg.Router,
		NativeDenom: cfg.NativeDenom,
	}, logger.Named("events"))
	dir := directory.New(directory.Config{
		NativeDenom:     cfg.NativeDenom,
		PrefetchCeiling: cfg.PrefetchCeiling,
	}, store, shared, logger.Named("directory"))
	pipeline := ingest.NewPipeline(ingest.Config{
		PrimaryCeiling:       cfg.PrimaryCeiling,
		FlushThreshold:       cfg.FlushThreshold,
		TolerateTaskFailures: cfg.TolerateTaskFailures,
	}, extractor, store, dir, logger.Named("pipeline"), opts...)

	var cursor ingest.Cursor = ingest.StoreCursor{Store: store, Name: cfg.CursorName}
	if cfg.Cursor != "" {
		cursor = &ingest.FileCursor{Path: cfg.Cursor}
	}

	runner := ingest.NewRunner(ingest.RunConfig{
		FromHeight:   cfg.From,
		ToHeight:     cfg.To,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PollInterval: cfg.PollInterval,
	}, client, pipeline, cursor, logger)

	logger.Info("indexer starting",
		zap.Int64("from", cfg.From),
		zap.Int64("to", cfg.To),
		zap.String("factory", cfg.Factory),
		zap.Int("publishers", len(publishers)),
		zap.Int("sinks", len(sinks)),
	)

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("indexer stopped")
		return nil
	}
	return err
}

// openStore connects to Postgres and applies migrations. Without a DSN the
// state lives in memory and is lost on exit.
func openStore(ctx context.Context, cfg config.RunConfig, logger *zap.Logger) (storage.Store, func(), error) {
	if cfg.PGDSN == "" {
		logger.Warn("no pg-dsn configured, keeping state in memory")
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx, logger); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
