package ohlcv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrNoRate is returned when no rate has been published yet.
var ErrNoRate = errors.New("native usd rate not available")

// StaticRate is a fixed native USD rate.
type StaticRate decimal.Decimal

func (r StaticRate) NativeUSD(context.Context) (decimal.Decimal, error) {
	rate := decimal.Decimal(r)
	if !rate.IsPositive() {
		return decimal.Zero, ErrNoRate
	}
	return rate, nil
}

// RedisRate reads the native USD rate from a key kept fresh by a price feed.
type RedisRate struct {
	client redis.UniversalClient
	key    string
}

func NewRedisRate(client redis.UniversalClient, key string) *RedisRate {
	return &RedisRate{client: client, key: key}
}

func (r *RedisRate) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	raw, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, ErrNoRate
		}
		return decimal.Zero, fmt.Errorf("read rate %s: %w", r.key, err)
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", raw, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, ErrNoRate
	}
	return rate, nil
}

// StaticSupply maps denoms to circulating supply in display units.
type StaticSupply map[string]decimal.Decimal

func (s StaticSupply) CirculatingSupply(_ context.Context, denom string) (decimal.Decimal, error) {
	supply, ok := s[denom]
	if !ok {
		return decimal.Zero, fmt.Errorf("no circulating supply for %s", denom)
	}
	return supply, nil
}
