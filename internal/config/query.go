package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

// QueryConfig holds settings shared by the read-side commands.
type QueryConfig struct {
	PGDSN       string
	NativeDenom string
	NativeUSD   decimal.Decimal
	RedisAddr   string
	RateKey     string
	Supply      map[string]decimal.Decimal
	LogLevel    string
	LogFile     string
}

// LoadQuery merges config file, environment variables, and flags into QueryConfig.
func LoadQuery(cfgFile string, flags *pflag.FlagSet) (QueryConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"native-denom": "uzig",
		"rate-key":     "ammscope:rate:native_usd",
		"log-level":    "warn",
	})
	if err != nil {
		return QueryConfig{}, err
	}

	cfg := QueryConfig{
		PGDSN:       v.GetString("pg-dsn"),
		NativeDenom: v.GetString("native-denom"),
		RedisAddr:   v.GetString("redis-addr"),
		RateKey:     v.GetString("rate-key"),
		Supply:      make(map[string]decimal.Decimal),
		LogLevel:    v.GetString("log-level"),
		LogFile:     v.GetString("log-file"),
	}

	if raw := strings.TrimSpace(v.GetString("native-usd")); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return QueryConfig{}, fmt.Errorf("parse native-usd: %w", err)
		}
		cfg.NativeUSD = rate
	}
	for denom, raw := range getStringMap(v, "supply") {
		supply, err := decimal.NewFromString(raw)
		if err != nil {
			return QueryConfig{}, fmt.Errorf("parse supply for %s: %w", denom, err)
		}
		cfg.Supply[denom] = supply
	}

	if cfg.PGDSN == "" {
		return QueryConfig{}, fmt.Errorf("pg dsn is required")
	}
	return cfg, nil
}

// ParseTime parses unix seconds or RFC3339. Empty input returns the zero time.
func ParseTime(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(val, 0).UTC(), nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return time.Time{}, err
	}
	return tm.UTC(), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
