package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// RunConfig holds settings for the ingestion command.
type RunConfig struct {
	RPCURL    string
	From      int64
	To        int64
	BatchSize int64

	Factory     string
	Router      string
	NativeDenom string

	PrimaryCeiling       int
	PrefetchCeiling      int
	MetadataCeiling      int
	FlushThreshold       int
	TolerateTaskFailures bool

	PGDSN      string
	PGMaxConns int32
	Cursor     string
	CursorName string

	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration

	RedisAddr     string
	RedisPrefix   string
	PoolCacheTTL  time.Duration
	NATSURL       string
	NATSPrefix    string
	ClickHouseDSN string
	TradesOut     string
	PushSpec      string
	MetricsAddr   string

	LogLevel string
	LogFile  string
}

// LoadRun merges config file, environment variables, and flags into RunConfig.
func LoadRun(cfgFile string, flags *pflag.FlagSet) (RunConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"batch-size":       int64(100),
		"native-denom":     "uzig",
		"primary-ceiling":  12,
		"prefetch-ceiling": 24,
		"metadata-ceiling": 4,
		"flush-threshold":  256,
		"pg-max-conns":     int32(10),
		"cursor-name":      "ingest",
		"max-retries":      5,
		"retry-backoff":    500 * time.Millisecond,
		"poll-interval":    2 * time.Second,
		"redis-prefix":     "ammscope:",
		"pool-cache-ttl":   24 * time.Hour,
		"nats-prefix":      "ammscope",
		"log-level":        "info",
	})
	if err != nil {
		return RunConfig{}, err
	}

	cfg := RunConfig{
		RPCURL:               v.GetString("rpc"),
		From:                 v.GetInt64("from"),
		To:                   v.GetInt64("to"),
		BatchSize:            v.GetInt64("batch-size"),
		Factory:              v.GetString("factory"),
		Router:               v.GetString("router"),
		NativeDenom:          v.GetString("native-denom"),
		PrimaryCeiling:       v.GetInt("primary-ceiling"),
		PrefetchCeiling:      v.GetInt("prefetch-ceiling"),
		MetadataCeiling:      v.GetInt("metadata-ceiling"),
		FlushThreshold:       v.GetInt("flush-threshold"),
		TolerateTaskFailures: v.GetBool("tolerate-task-failures"),
		PGDSN:                v.GetString("pg-dsn"),
		PGMaxConns:           v.GetInt32("pg-max-conns"),
		Cursor:               v.GetString("cursor"),
		CursorName:           v.GetString("cursor-name"),
		MaxRetries:           v.GetInt("max-retries"),
		RetryBackoff:         v.GetDuration("retry-backoff"),
		PollInterval:         v.GetDuration("poll-interval"),
		RedisAddr:            v.GetString("redis-addr"),
		RedisPrefix:          v.GetString("redis-prefix"),
		PoolCacheTTL:         v.GetDuration("pool-cache-ttl"),
		NATSURL:              v.GetString("nats-url"),
		NATSPrefix:           v.GetString("nats-prefix"),
		ClickHouseDSN:        v.GetString("clickhouse-dsn"),
		TradesOut:            v.GetString("trades-out"),
		PushSpec:             v.GetString("push-spec"),
		MetricsAddr:          v.GetString("metrics-addr"),
		LogLevel:             v.GetString("log-level"),
		LogFile:              v.GetString("log-file"),
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c RunConfig) Validate() error {
	switch {
	case c.RPCURL == "":
		return fmt.Errorf("rpc url is required")
	case c.Factory == "":
		return fmt.Errorf("factory address is required")
	case c.NativeDenom == "":
		return fmt.Errorf("native denom is required")
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be greater than zero")
	case c.From < 0 || c.To < 0:
		return fmt.Errorf("heights must not be negative")
	case c.To != 0 && c.To < c.From:
		return fmt.Errorf("to height must be >= from height")
	}
	return nil
}
