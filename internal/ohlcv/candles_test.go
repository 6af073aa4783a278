package ohlcv

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ammScope/internal/model"
	"ammScope/internal/storage/memory"
)

const native = "uzig"

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store *memory.Store
	pools map[string]model.Pool
}

func newFixture(t *testing.T, addrs ...string) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), pools: make(map[string]model.Pool)}
	for _, addr := range addrs {
		pool, err := f.store.UpsertPool(context.Background(), model.Pool{Address: addr, BaseDenom: "umeme", QuoteDenom: native})
		require.NoError(t, err)
		f.pools[addr] = pool
	}
	return f
}

func (f *fixture) trade(t *testing.T, addr string, at time.Time, price, volume string, height int64) {
	t.Helper()
	require.NoError(t, f.store.UpsertOHLCV1m(context.Background(), model.BarUpdate{
		PoolID:   f.pools[addr].ID,
		Bucket:   at,
		Price:    d(price),
		Volume:   d(volume),
		Trades:   1,
		Position: model.Position{Height: height},
	}))
}

func (f *fixture) aggregator(t *testing.T, supply SupplySource, rates RateSource) *Aggregator {
	return New(Config{NativeDenom: native}, f.store, supply, rates, zaptest.NewLogger(t))
}

type fixedSupply decimal.Decimal

func (s fixedSupply) CirculatingSupply(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal(s), nil
}

type fixedRate decimal.Decimal

func (r fixedRate) NativeUSD(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(r), nil
}

func TestGetCandlesContinuity(t *testing.T) {
	f := newFixture(t, "pair")
	f.trade(t, "pair", t0.Add(2*time.Minute), "1", "10", 1)
	f.trade(t, "pair", t0.Add(23*time.Minute), "2", "5", 2)

	for _, fill := range []Fill{FillPrev, FillZero} {
		candles, err := f.aggregator(t, nil, nil).GetCandles(context.Background(), Query{
			Scope:     Scope{Pool: "pair"},
			Timeframe: Timeframe5m,
			From:      t0,
			To:        t0.Add(time.Hour),
			Fill:      fill,
		})
		require.NoError(t, err)
		require.Len(t, candles, 12, fill)
		for i := 1; i < len(candles); i++ {
			assert.True(t, candles[i].Time.After(candles[i-1].Time))
			assert.Equal(t, 5*time.Minute, candles[i].Time.Sub(candles[i-1].Time))
		}
	}
}

func TestGetCandlesAggregatesMinutes(t *testing.T) {
	f := newFixture(t, "pair")
	f.trade(t, "pair", t0, "1.0", "1", 1)
	f.trade(t, "pair", t0.Add(time.Minute), "3.0", "2", 2)
	f.trade(t, "pair", t0.Add(2*time.Minute), "0.5", "3", 3)
	f.trade(t, "pair", t0.Add(4*time.Minute), "2.0", "4", 4)

	candles, err := f.aggregator(t, nil, nil).GetCandles(context.Background(), Query{
		Scope:     Scope{Pool: "pair"},
		Timeframe: Timeframe5m,
		From:      t0,
		To:        t0.Add(5 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	c := candles[0]
	assert.True(t, c.Open.Equal(d("1")))
	assert.True(t, c.High.Equal(d("3")))
	assert.True(t, c.Low.Equal(d("0.5")))
	assert.True(t, c.Close.Equal(d("2")))
	assert.True(t, c.Volume.Equal(d("10")))
	assert.Equal(t, int64(4), c.Trades)
}

func TestGetCandlesFillPolicies(t *testing.T) {
	f := newFixture(t, "pair")
	f.trade(t, "pair", t0.Add(-10*time.Minute), "4", "1", 1)
	f.trade(t, "pair", t0.Add(time.Minute), "5", "1", 2)
	agg := f.aggregator(t, nil, nil)
	base := Query{Scope: Scope{Pool: "pair"}, Timeframe: Timeframe1m, From: t0, To: t0.Add(3 * time.Minute)}

	q := base
	q.Fill = FillPrev
	prev, err := agg.GetCandles(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, prev, 3)
	assert.True(t, prev[0].Open.Equal(d("4")))
	assert.True(t, prev[0].Close.Equal(d("4")))
	assert.True(t, prev[0].Volume.IsZero())
	assert.Zero(t, prev[0].Trades)
	assert.True(t, prev[2].High.Equal(d("5")))
	assert.True(t, prev[2].Low.Equal(d("5")))

	q.Fill = FillZero
	zero, err := agg.GetCandles(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, zero, 3)
	assert.True(t, zero[0].Open.IsZero())
	assert.True(t, zero[0].Close.IsZero())
	assert.True(t, zero[1].Close.Equal(d("5")))

	q.Fill = FillNone
	none, err := agg.GetCandles(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, none, 1)
	assert.Equal(t, t0.Add(time.Minute), none[0].Time)
}

func TestGetCandlesPrevWithoutHistoryIsZero(t *testing.T) {
	f := newFixture(t, "pair")
	candles, err := f.aggregator(t, nil, nil).GetCandles(context.Background(), Query{
		Scope: Scope{Pool: "pair"}, Timeframe: Timeframe1h, From: t0, To: t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[1].Close.IsZero())
}

func TestGetCandlesTokenScopeMergesPools(t *testing.T) {
	f := newFixture(t, "small", "big")
	f.trade(t, "small", t0, "1.0", "1", 1)
	f.trade(t, "big", t0, "1.2", "9", 2)
	f.trade(t, "small", t0.Add(time.Minute), "0.9", "2", 3)

	candles, err := f.aggregator(t, nil, nil).GetCandles(context.Background(), Query{
		Scope:     Scope{Token: "umeme"},
		Timeframe: Timeframe1m,
		From:      t0,
		To:        t0.Add(2 * time.Minute),
		Fill:      FillNone,
	})
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.True(t, first.Open.Equal(d("1.2")), first.Open.String())
	assert.True(t, first.Close.Equal(d("1.2")))
	assert.True(t, first.High.Equal(d("1.2")))
	assert.True(t, first.Low.Equal(d("1.0")))
	assert.True(t, first.Volume.Equal(d("10")))
	assert.Equal(t, int64(2), first.Trades)
	assert.True(t, candles[1].Close.Equal(d("0.9")))
}

func TestGetCandlesModeAndUnit(t *testing.T) {
	f := newFixture(t, "pair")
	f.trade(t, "pair", t0, "2", "3", 1)
	agg := f.aggregator(t, fixedSupply(d("1000")), fixedRate(d("0.5")))

	candles, err := agg.GetCandles(context.Background(), Query{
		Scope: Scope{Pool: "pair"}, Timeframe: Timeframe1m, From: t0, To: t0.Add(time.Minute),
		Mode: ModeMcap, Unit: UnitUSD,
	})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.True(t, candles[0].Close.Equal(d("1000")), candles[0].Close.String())
	assert.True(t, candles[0].Volume.Equal(d("1.5")))

	_, err = f.aggregator(t, nil, nil).GetCandles(context.Background(), Query{
		Scope: Scope{Pool: "pair"}, Timeframe: Timeframe1m, From: t0, To: t0.Add(time.Minute), Mode: ModeMcap,
	})
	assert.ErrorIs(t, err, ErrNoSupplySource)
}

func TestGetCandlesEmptyAndInvalid(t *testing.T) {
	f := newFixture(t)
	agg := f.aggregator(t, nil, nil)
	ctx := context.Background()

	candles, err := agg.GetCandles(ctx, Query{Scope: Scope{Token: "unknown"}, Timeframe: Timeframe1h, From: t0, To: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, candles)
	assert.NotNil(t, candles)

	_, err = agg.GetCandles(ctx, Query{Scope: Scope{Pool: "missing"}, Timeframe: Timeframe1h, From: t0, To: t0.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrUnknownPool)

	_, err = agg.GetCandles(ctx, Query{Scope: Scope{Pool: "p"}, Timeframe: "2h", From: t0, To: t0.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrUnknownTimeframe)

	_, err = agg.GetCandles(ctx, Query{Scope: Scope{Pool: "p"}, Timeframe: Timeframe1h, From: t0, To: t0})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = agg.GetCandles(ctx, Query{Scope: Scope{Pool: "p", Token: "t"}, Timeframe: Timeframe1h, From: t0, To: t0.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = agg.GetCandles(ctx, Query{Scope: Scope{Token: "t"}, Timeframe: Timeframe1m, From: t0, To: t0.AddDate(1, 0, 0)})
	assert.ErrorIs(t, err, ErrRangeTooLarge)
}
