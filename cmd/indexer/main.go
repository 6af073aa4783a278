package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "AMM DEX indexer for CosmWasm pair contracts",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest blocks into pools, trades, reserves and minute bars",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "CometBFT RPC URL")
	runCmd.Flags().Int64("from", 1, "start height (inclusive)")
	runCmd.Flags().Int64("to", 0, "end height (inclusive), 0 follows the chain head")
	runCmd.Flags().Int64("batch-size", 100, "heights per cursor save")
	runCmd.Flags().String("factory", "", "pair factory contract address")
	runCmd.Flags().String("router", "", "router contract address")
	runCmd.Flags().String("native-denom", "uzig", "native denom used as quote asset")
	runCmd.Flags().Int("primary-ceiling", 12, "concurrent write tasks per batch")
	runCmd.Flags().Int("prefetch-ceiling", 24, "concurrent pool prefetches")
	runCmd.Flags().Int("metadata-ceiling", 4, "concurrent token metadata tasks")
	runCmd.Flags().Int("flush-threshold", 256, "pending actions that force a flush")
	runCmd.Flags().Bool("tolerate-task-failures", false, "advance past heights with failed tasks")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN, empty keeps state in memory")
	runCmd.Flags().Int32("pg-max-conns", 10, "Postgres pool size")
	runCmd.Flags().String("cursor", "", "cursor file path, empty stores the cursor in Postgres")
	runCmd.Flags().String("cursor-name", "ingest", "cursor name in indexer_state")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("poll-interval", 2*time.Second, "head polling interval in follow mode")
	runCmd.Flags().String("redis-addr", "", "Redis address for the shared pool cache and notifications")
	runCmd.Flags().String("redis-prefix", "ammscope:", "Redis key and channel prefix")
	runCmd.Flags().Duration("pool-cache-ttl", 24*time.Hour, "shared pool cache TTL")
	runCmd.Flags().String("nats-url", "", "NATS URL for notifications")
	runCmd.Flags().String("nats-prefix", "ammscope", "NATS subject prefix")
	runCmd.Flags().String("clickhouse-dsn", "", "ClickHouse DSN for the trade analytics sink")
	runCmd.Flags().String("trades-out", "", "append new trades to this JSONL file")
	runCmd.Flags().String("push-spec", "", "cron spec (with seconds) for candle pushes")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().String("log-file", "", "also write logs to this rotated file")

	root.AddCommand(runCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	candlesCmd := &cobra.Command{
		Use:   "candles",
		Short: "Print OHLCV candles for a pool or token",
		RunE:  runCandles,
	}

	candlesCmd.Flags().String("pool", "", "pair contract address")
	candlesCmd.Flags().String("token", "", "token denom, merges all native-quoted pools")
	candlesCmd.Flags().String("timeframe", "1h", "1m, 5m, 15m, 30m, 1h, 4h, 1d, 1w, 1M, 3M or 1y")
	candlesCmd.Flags().String("since", "", "range start (unix seconds or RFC3339), default one day ago")
	candlesCmd.Flags().String("until", "", "range end (unix seconds or RFC3339), default now")
	candlesCmd.Flags().String("mode", "price", "price or mcap")
	candlesCmd.Flags().String("unit", "native", "native or usd")
	candlesCmd.Flags().String("fill", "prev", "prev, zero or none")
	addQueryFlags(candlesCmd)

	root.AddCommand(candlesCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap across native-quoted pools",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("offer", "", "denom to sell")
	quoteCmd.Flags().String("ask", "", "denom to buy")
	quoteCmd.Flags().String("amount", "", "input amount in display units, default about $100")
	addQueryFlags(quoteCmd)

	root.AddCommand(quoteCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a pool over a trailing window",
		RunE:  runStats,
	}

	statsCmd.Flags().String("pool", "", "pair contract address")
	statsCmd.Flags().Duration("window", 24*time.Hour, "window length")
	statsCmd.Flags().String("until", "", "window end (unix seconds or RFC3339), default now")
	addQueryFlags(statsCmd)

	root.AddCommand(statsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("native-denom", "uzig", "native denom used as quote asset")
	cmd.Flags().String("native-usd", "", "fixed USD price of one native unit")
	cmd.Flags().String("redis-addr", "", "Redis address to read the native USD rate from")
	cmd.Flags().String("rate-key", "ammscope:rate:native_usd", "Redis key holding the native USD rate")
	cmd.Flags().StringSlice("supply", nil, "circulating supply per denom (denom=amount, comma-separated)")
	cmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", "", "also write logs to this rotated file")
}
