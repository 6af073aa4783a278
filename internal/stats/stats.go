// Package stats summarizes pools over trailing windows from stored minute bars
// and the latest reserves.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ammScope/internal/amount"
	"ammScope/internal/model"
	"ammScope/internal/routing"
	"ammScope/internal/storage"
)

const (
	FeeMethodPairType = "approx_from_pair_type"
	TVLMethodReserves = "quote_reserve_x2"
	TVLMethodNone     = "unavailable"

	ratioScale = 18
)

var (
	ErrUnknownPool   = errors.New("unknown pool")
	ErrInvalidWindow = errors.New("window must be positive")
)

// Store is the read surface the summarizer needs.
type Store interface {
	storage.PoolReader
	storage.StateReader
	storage.BarReader
}

type Summarizer struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{store: store, logger: logger}
}

// PoolWindow summarizes the pool over [end-window, end).
func (s *Summarizer) PoolWindow(ctx context.Context, address string, window time.Duration, end time.Time) (model.PoolWindowMetrics, error) {
	if window <= 0 {
		return model.PoolWindowMetrics{}, ErrInvalidWindow
	}
	end = end.UTC().Truncate(time.Minute)
	start := end.Add(-window)

	pool, err := s.store.PoolByAddress(ctx, address)
	if err != nil {
		return model.PoolWindowMetrics{}, fmt.Errorf("load pool %s: %w", address, err)
	}
	if pool == nil {
		return model.PoolWindowMetrics{}, fmt.Errorf("%w: %s", ErrUnknownPool, address)
	}

	bars, err := s.store.Bars(ctx, []int64{pool.ID}, start, end)
	if err != nil {
		return model.PoolWindowMetrics{}, fmt.Errorf("load bars: %w", err)
	}

	acc := newAccumulator()
	for _, bar := range bars {
		acc.add(bar)
	}

	feeRate := routing.FeeFor(pool.PairType)
	m := model.PoolWindowMetrics{
		PoolAddress:    pool.Address,
		PairType:       pool.PairType,
		WindowSizeSecs: int64(window / time.Second),
		WindowStart:    start,
		WindowEnd:      end,
		SwapCount:      acc.trades,
		Volume:         acc.volume,
		Fee:            acc.volume.Mul(feeRate),
		FeeMethod:      FeeMethodPairType,
		TVLMethod:      TVLMethodNone,
	}
	if acc.seen {
		m.Open, m.Close, m.High, m.Low = ptr(acc.open), ptr(acc.close), ptr(acc.high), ptr(acc.low)
		if acc.open.IsPositive() {
			change := acc.close.Sub(acc.open).DivRound(acc.open, ratioScale)
			m.PriceChange = &change
		}
	}

	tvl, err := s.tvl(ctx, *pool)
	if err != nil {
		s.logger.Warn("tvl unavailable", zap.String("pool", pool.Address), zap.Error(err))
	}
	if tvl != nil {
		m.TVL = tvl
		m.TVLMethod = TVLMethodReserves
		m.FeeRate, m.APR = feeRatios(m.Fee, *tvl, window)
	}
	return m, nil
}

// tvl values the pool at twice its quote reserve, which holds for
// constant-product pools at equilibrium.
func (s *Summarizer) tvl(ctx context.Context, pool model.Pool) (*decimal.Decimal, error) {
	state, err := s.store.PoolState(ctx, pool.ID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	raw, ok := state.Reserve(pool.QuoteDenom)
	if !ok {
		return nil, nil
	}

	exp := model.DefaultExponent
	tokens, err := s.store.Tokens(ctx, []string{pool.QuoteDenom})
	if err != nil {
		return nil, err
	}
	if t, ok := tokens[pool.QuoteDenom]; ok {
		exp = t.Exponent
	}
	quote, ok := amount.Display(raw, exp)
	if !ok {
		return nil, fmt.Errorf("invalid quote reserve %q", raw)
	}
	tvl := quote.Mul(decimal.NewFromInt(2))
	return &tvl, nil
}

func feeRatios(fee, tvl decimal.Decimal, window time.Duration) (*decimal.Decimal, *decimal.Decimal) {
	if !tvl.IsPositive() {
		return nil, nil
	}
	rate := fee.DivRound(tvl, ratioScale)
	year := decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))
	apr := rate.Mul(year).DivRound(decimal.NewFromInt(int64(window/time.Second)), ratioScale)
	return &rate, &apr
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
