// Package ohlcv rolls stored one-minute bars up into gap-free candle series.
package ohlcv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ammScope/internal/model"
	"ammScope/internal/storage"
)

var (
	ErrRangeTooLarge   = errors.New("candle range too large")
	ErrInvalidRange    = errors.New("from must be before to")
	ErrUnknownPool     = errors.New("unknown pool")
	ErrNoSupplySource  = errors.New("market cap mode needs a supply source")
	ErrNoRateSource    = errors.New("usd unit needs a rate source")
	ErrInvalidArgument = errors.New("invalid candle query")
)

// DefaultMaxBuckets bounds the size of one response.
const DefaultMaxBuckets = 5000

type Mode string

const (
	ModePrice Mode = "price"
	ModeMcap  Mode = "mcap"
)

type Unit string

const (
	UnitNative Unit = "native"
	UnitUSD    Unit = "usd"
)

// Fill decides what an empty bucket looks like.
type Fill string

const (
	FillPrev Fill = "prev"
	FillZero Fill = "zero"
	FillNone Fill = "none"
)

// Scope selects one pool by address or every native-quoted pool of a token.
type Scope struct {
	Pool  string
	Token string
}

// Query describes a candle request. Empty Mode, Unit and Fill take the
// defaults price, native and prev.
type Query struct {
	Scope     Scope
	Timeframe Timeframe
	From      time.Time
	To        time.Time
	Mode      Mode
	Unit      Unit
	Fill      Fill
}

// SupplySource reports a token's circulating supply in display units.
type SupplySource interface {
	CirculatingSupply(ctx context.Context, denom string) (decimal.Decimal, error)
}

// RateSource reports the USD price of one native unit.
type RateSource interface {
	NativeUSD(ctx context.Context) (decimal.Decimal, error)
}

// BarStore is the read surface the aggregator needs.
type BarStore interface {
	storage.PoolReader
	storage.BarReader
}

// Config holds aggregator settings.
type Config struct {
	NativeDenom string
	MaxBuckets  int
}

// Aggregator answers candle queries from one-minute bars. It keeps no state
// between calls.
type Aggregator struct {
	cfg    Config
	store  BarStore
	supply SupplySource
	rates  RateSource
	logger *zap.Logger
}

func New(cfg Config, store BarStore, supply SupplySource, rates RateSource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBuckets <= 0 {
		cfg.MaxBuckets = DefaultMaxBuckets
	}
	return &Aggregator{cfg: cfg, store: store, supply: supply, rates: rates, logger: logger}
}

// GetCandles returns one candle per bucket in [From, To). With FillNone empty
// buckets are omitted, so an empty scope yields an empty slice.
func (a *Aggregator) GetCandles(ctx context.Context, q Query) ([]model.Candle, error) {
	q, err := normalize(q)
	if err != nil {
		return nil, err
	}

	buckets, err := q.Timeframe.Buckets(q.From, q.To, a.cfg.MaxBuckets)
	if err != nil {
		return nil, err
	}
	if len(buckets) == 0 {
		return []model.Candle{}, nil
	}

	poolIDs, base, err := a.resolveScope(ctx, q.Scope)
	if err != nil {
		return nil, err
	}
	if len(poolIDs) == 0 {
		a.logger.Debug("no native-quoted pools for token", zap.String("token", q.Scope.Token))
		return []model.Candle{}, nil
	}

	start := buckets[0]
	end := q.Timeframe.Next(buckets[len(buckets)-1])
	bars, err := a.store.Bars(ctx, poolIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	minutes := mergeMinutes(bars)

	var seed decimal.Decimal
	if q.Fill == FillPrev {
		prev, err := a.store.LastBarBefore(ctx, poolIDs, start)
		if err != nil {
			return nil, fmt.Errorf("load seed bar: %w", err)
		}
		if prev != nil {
			seed = prev.Close
		}
	}

	candles := rollup(buckets, q.Timeframe, minutes, q.Fill, seed)
	return a.transform(ctx, q, base, candles)
}

func normalize(q Query) (Query, error) {
	if _, err := ParseTimeframe(string(q.Timeframe)); err != nil {
		return q, err
	}
	if !q.From.Before(q.To) {
		return q, ErrInvalidRange
	}
	if (q.Scope.Pool == "") == (q.Scope.Token == "") {
		return q, fmt.Errorf("%w: exactly one of pool or token is required", ErrInvalidArgument)
	}
	if q.Mode == "" {
		q.Mode = ModePrice
	}
	if q.Unit == "" {
		q.Unit = UnitNative
	}
	if q.Fill == "" {
		q.Fill = FillPrev
	}
	switch {
	case q.Mode != ModePrice && q.Mode != ModeMcap:
		return q, fmt.Errorf("%w: mode %q", ErrInvalidArgument, q.Mode)
	case q.Unit != UnitNative && q.Unit != UnitUSD:
		return q, fmt.Errorf("%w: unit %q", ErrInvalidArgument, q.Unit)
	case q.Fill != FillPrev && q.Fill != FillZero && q.Fill != FillNone:
		return q, fmt.Errorf("%w: fill %q", ErrInvalidArgument, q.Fill)
	}
	q.From, q.To = q.From.UTC(), q.To.UTC()
	return q, nil
}

// resolveScope returns the pool ids to read and the base denom they price.
func (a *Aggregator) resolveScope(ctx context.Context, scope Scope) ([]int64, string, error) {
	if scope.Pool != "" {
		pool, err := a.store.PoolByAddress(ctx, scope.Pool)
		if err != nil {
			return nil, "", fmt.Errorf("load pool %s: %w", scope.Pool, err)
		}
		if pool == nil {
			return nil, "", fmt.Errorf("%w: %s", ErrUnknownPool, scope.Pool)
		}
		return []int64{pool.ID}, pool.BaseDenom, nil
	}

	pools, err := a.store.PoolsByBase(ctx, scope.Token, a.cfg.NativeDenom)
	if err != nil {
		return nil, "", fmt.Errorf("load pools for %s: %w", scope.Token, err)
	}
	ids := make([]int64, 0, len(pools))
	for _, p := range pools {
		ids = append(ids, p.ID)
	}
	return ids, scope.Token, nil
}

// mergeMinutes folds bars of several pools into one bar per minute. Volume and
// trades add up, high and low extend, and open and close come from the pool
// with the most volume in that minute. Input must be ordered by bucket.
func mergeMinutes(bars []model.Bar) []model.Bar {
	out := make([]model.Bar, 0, len(bars))
	var leader decimal.Decimal
	for _, bar := range bars {
		n := len(out)
		if n == 0 || !out[n-1].Bucket.Equal(bar.Bucket) {
			out = append(out, bar)
			leader = bar.Volume
			continue
		}
		cur := &out[n-1]
		if bar.Volume.GreaterThan(leader) {
			cur.Open, cur.Close = bar.Open, bar.Close
			leader = bar.Volume
		}
		if bar.High.GreaterThan(cur.High) {
			cur.High = bar.High
		}
		if bar.Low.LessThan(cur.Low) {
			cur.Low = bar.Low
		}
		cur.Volume = cur.Volume.Add(bar.Volume)
		cur.Trades += bar.Trades
	}
	return out
}

func rollup(buckets []time.Time, tf Timeframe, minutes []model.Bar, fill Fill, seed decimal.Decimal) []model.Candle {
	out := make([]model.Candle, 0, len(buckets))
	last := seed
	i := 0
	for _, start := range buckets {
		end := tf.Next(start)
		for i < len(minutes) && minutes[i].Bucket.Before(start) {
			i++
		}

		var (
			c    model.Candle
			seen bool
		)
		for i < len(minutes) && minutes[i].Bucket.Before(end) {
			m := minutes[i]
			if !seen {
				c = model.Candle{Time: start, Open: m.Open, High: m.High, Low: m.Low}
				seen = true
			}
			if m.High.GreaterThan(c.High) {
				c.High = m.High
			}
			if m.Low.LessThan(c.Low) {
				c.Low = m.Low
			}
			c.Close = m.Close
			c.Volume = c.Volume.Add(m.Volume)
			c.Trades += m.Trades
			i++
		}

		if seen {
			last = c.Close
			out = append(out, c)
			continue
		}

		switch fill {
		case FillPrev:
			out = append(out, model.Candle{Time: start, Open: last, High: last, Low: last, Close: last})
		case FillZero:
			out = append(out, model.Candle{Time: start})
		}
	}
	return out
}

func (a *Aggregator) transform(ctx context.Context, q Query, base string, candles []model.Candle) ([]model.Candle, error) {
	priceFactor := decimal.NewFromInt(1)
	volumeFactor := decimal.NewFromInt(1)

	if q.Mode == ModeMcap {
		if a.supply == nil {
			return nil, ErrNoSupplySource
		}
		supply, err := a.supply.CirculatingSupply(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("circulating supply %s: %w", base, err)
		}
		priceFactor = priceFactor.Mul(supply)
	}
	if q.Unit == UnitUSD {
		if a.rates == nil {
			return nil, ErrNoRateSource
		}
		rate, err := a.rates.NativeUSD(ctx)
		if err != nil {
			return nil, fmt.Errorf("native usd rate: %w", err)
		}
		priceFactor = priceFactor.Mul(rate)
		volumeFactor = volumeFactor.Mul(rate)
	}

	if priceFactor.Equal(decimal.NewFromInt(1)) && volumeFactor.Equal(decimal.NewFromInt(1)) {
		return candles, nil
	}
	for i := range candles {
		c := &candles[i]
		c.Open = c.Open.Mul(priceFactor)
		c.High = c.High.Mul(priceFactor)
		c.Low = c.Low.Mul(priceFactor)
		c.Close = c.Close.Mul(priceFactor)
		c.Volume = c.Volume.Mul(volumeFactor)
	}
	return candles, nil
}
