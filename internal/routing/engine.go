// Package routing quotes swaps across native-quoted constant-product pools.
package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ammScope/internal/amount"
	"ammScope/internal/model"
	"ammScope/internal/ohlcv"
	"ammScope/internal/storage"
)

var (
	ErrSameAsset     = errors.New("from and to are the same asset")
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	DefaultNotionalUSD   = 100
	DefaultFallbackInput = 1000
	DefaultTolerance     = "0.005"
)

// Side is the direction of a leg against a native-quoted pool.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Leg is one hop through a pool. Prices are quote per base in display units.
type Leg struct {
	Pool        string          `json:"pool"`
	PairType    string          `json:"pair_type"`
	Side        Side            `json:"side"`
	Denom       string          `json:"denom"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	Fee         decimal.Decimal `json:"fee"`
	MidPrice    decimal.Decimal `json:"mid_price"`
	ExecPrice   decimal.Decimal `json:"exec_price"`
	PriceImpact decimal.Decimal `json:"price_impact"`
	// Simulated is false when the leg was priced from the last bar instead of reserves.
	Simulated bool `json:"simulated"`
}

// Result is a quote. A nil Route means there is no liquidity for the pair.
type Result struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Rate      decimal.Decimal `json:"rate"`
	Route     []Leg           `json:"route"`
}

// Store is the read surface the engine needs.
type Store interface {
	storage.PoolReader
	storage.StateReader
	storage.BarReader
}

// Config holds engine settings. Amounts are display units.
type Config struct {
	NativeDenom string
	// NotionalUSD sizes the default input when no amount is given.
	NotionalUSD decimal.Decimal
	// FallbackInput is the default native input when no USD rate is available.
	FallbackInput decimal.Decimal
	// Tolerance is the relative mid price distance treated as a tie.
	Tolerance decimal.Decimal
}

// Engine ranks candidate pools by simulated output.
type Engine struct {
	cfg    Config
	store  Store
	rates  ohlcv.RateSource
	logger *zap.Logger
}

func NewEngine(cfg Config, store Store, rates ohlcv.RateSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.NotionalUSD.IsPositive() {
		cfg.NotionalUSD = decimal.NewFromInt(DefaultNotionalUSD)
	}
	if !cfg.FallbackInput.IsPositive() {
		cfg.FallbackInput = decimal.NewFromInt(DefaultFallbackInput)
	}
	if cfg.Tolerance.IsNegative() || cfg.Tolerance.IsZero() {
		cfg.Tolerance = decimal.RequireFromString(DefaultTolerance)
	}
	return &Engine{cfg: cfg, store: store, rates: rates, logger: logger}
}

// Quote prices swapping amountIn of from into to. A nil amountIn uses a default
// notional. Token to token quotes go through the native denom.
func (e *Engine) Quote(ctx context.Context, from, to string, amountIn *decimal.Decimal) (Result, error) {
	res := Result{From: from, To: to}
	if from == to {
		return res, ErrSameAsset
	}
	if amountIn != nil && !amountIn.IsPositive() {
		return res, ErrInvalidAmount
	}
	native := e.cfg.NativeDenom

	switch {
	case from == native:
		leg, err := e.bestLeg(ctx, to, SideBuy, amountIn)
		if err != nil || leg == nil {
			return res, err
		}
		return e.finish(res, *leg), nil

	case to == native:
		leg, err := e.bestLeg(ctx, from, SideSell, amountIn)
		if err != nil || leg == nil {
			return res, err
		}
		return e.finish(res, *leg), nil
	}

	sell, err := e.bestLeg(ctx, from, SideSell, amountIn)
	if err != nil || sell == nil {
		return res, err
	}
	mid := sell.AmountOut
	buy, err := e.bestLeg(ctx, to, SideBuy, &mid)
	if err != nil || buy == nil {
		return res, err
	}
	return e.finish(res, *sell, *buy), nil
}

func (e *Engine) finish(res Result, legs ...Leg) Result {
	res.Route = legs
	res.AmountIn = legs[0].AmountIn
	res.AmountOut = legs[len(legs)-1].AmountOut
	if res.AmountIn.IsPositive() {
		res.Rate = res.AmountOut.DivRound(res.AmountIn, divPrecision)
	}
	return res
}

type candidate struct {
	pool      model.Pool
	base      decimal.Decimal
	quote     decimal.Decimal
	mid       decimal.Decimal
	tvl       decimal.Decimal
	simulable bool
}

// bestLeg picks the pool of token that gives the most output for the side.
// It returns nil when no pool can be priced.
func (e *Engine) bestLeg(ctx context.Context, token string, side Side, amountIn *decimal.Decimal) (*Leg, error) {
	cands, err := e.candidates(ctx, token)
	if err != nil {
		return nil, err
	}

	var sim []candidate
	for _, c := range cands {
		if c.simulable {
			sim = append(sim, c)
		}
	}
	if len(sim) > 0 {
		in, err := e.inputFor(ctx, side, amountIn, sim)
		if err != nil {
			return nil, err
		}
		return e.bySimulation(side, in, sim), nil
	}

	var priced []candidate
	for _, c := range cands {
		if c.mid.IsPositive() {
			priced = append(priced, c)
		}
	}
	if len(priced) == 0 {
		return nil, nil
	}
	in, err := e.inputFor(ctx, side, amountIn, priced)
	if err != nil {
		return nil, err
	}
	return e.byMidPrice(side, in, priced), nil
}

func (e *Engine) candidates(ctx context.Context, token string) ([]candidate, error) {
	pools, err := e.store.PoolsByBase(ctx, token, e.cfg.NativeDenom)
	if err != nil {
		return nil, fmt.Errorf("load pools for %s: %w", token, err)
	}
	if len(pools) == 0 {
		return nil, nil
	}
	tokens, err := e.store.Tokens(ctx, []string{token, e.cfg.NativeDenom})
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	baseExp := exponentOf(tokens, token)
	quoteExp := exponentOf(tokens, e.cfg.NativeDenom)

	out := make([]candidate, 0, len(pools))
	for _, pool := range pools {
		c := candidate{pool: pool}
		state, err := e.store.PoolState(ctx, pool.ID)
		if err != nil {
			return nil, fmt.Errorf("load pool state %s: %w", pool.Address, err)
		}
		if state != nil {
			baseRaw, _ := state.Reserve(pool.BaseDenom)
			quoteRaw, _ := state.Reserve(pool.QuoteDenom)
			c.base, _ = amount.Display(baseRaw, baseExp)
			c.quote, _ = amount.Display(quoteRaw, quoteExp)
			c.tvl = c.quote.Mul(decimal.NewFromInt(2))
			if mid, ok := amount.Price(baseRaw, baseExp, quoteRaw, quoteExp); ok {
				c.mid = mid
				c.simulable = true
			}
		}
		if !c.simulable {
			bar, err := e.store.LatestBar(ctx, pool.ID)
			if err != nil {
				return nil, fmt.Errorf("load latest bar %s: %w", pool.Address, err)
			}
			if bar != nil {
				c.mid = bar.Close
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// inputFor returns the leg input in display units of what is being spent.
func (e *Engine) inputFor(ctx context.Context, side Side, amountIn *decimal.Decimal, cands []candidate) (decimal.Decimal, error) {
	if amountIn != nil {
		return *amountIn, nil
	}
	nativeIn := e.cfg.FallbackInput
	if e.rates != nil {
		rate, err := e.rates.NativeUSD(ctx)
		if err != nil {
			e.logger.Debug("native usd rate unavailable", zap.Error(err))
		} else if rate.IsPositive() {
			nativeIn = e.cfg.NotionalUSD.DivRound(rate, divPrecision)
		}
	}
	if side == SideBuy {
		return nativeIn, nil
	}

	// Sells spend the token, so convert through the deepest pool's mid price.
	deepest := cands[0]
	for _, c := range cands[1:] {
		if c.tvl.GreaterThan(deepest.tvl) {
			deepest = c
		}
	}
	return nativeIn.DivRound(deepest.mid, divPrecision), nil
}

func (e *Engine) bySimulation(side Side, in decimal.Decimal, cands []candidate) *Leg {
	var best *Leg
	for _, c := range cands {
		fee := FeeFor(c.pool.PairType)
		reserveIn, reserveOut := c.quote, c.base
		if side == SideSell {
			reserveIn, reserveOut = c.base, c.quote
		}
		out, ok := Simulate(in, reserveIn, reserveOut, fee)
		if !ok {
			continue
		}
		if best != nil && !out.GreaterThan(best.AmountOut) {
			continue
		}
		leg := e.leg(c, side, in, out, fee)
		leg.Simulated = true
		best = &leg
	}
	return best
}

// byMidPrice ranks pools by their last traded price. Buys want the lowest
// price and sells the highest; prices within the tolerance of the best are
// ties resolved by larger TVL.
func (e *Engine) byMidPrice(side Side, in decimal.Decimal, cands []candidate) *Leg {
	best := cands[0]
	for _, c := range cands[1:] {
		if (side == SideBuy && c.mid.LessThan(best.mid)) || (side == SideSell && c.mid.GreaterThan(best.mid)) {
			best = c
		}
	}

	chosen := best
	for _, c := range cands {
		dist := c.mid.Sub(best.mid).Abs().DivRound(best.mid, divPrecision)
		if dist.LessThanOrEqual(e.cfg.Tolerance) && c.tvl.GreaterThan(chosen.tvl) {
			chosen = c
		}
	}

	fee := FeeFor(chosen.pool.PairType)
	effective := in.Mul(decimal.NewFromInt(1).Sub(fee))
	var out decimal.Decimal
	if side == SideBuy {
		out = effective.DivRound(chosen.mid, divPrecision)
	} else {
		out = effective.Mul(chosen.mid)
	}
	leg := e.leg(chosen, side, in, out, fee)
	return &leg
}

func (e *Engine) leg(c candidate, side Side, in, out, fee decimal.Decimal) Leg {
	leg := Leg{
		Pool:      c.pool.Address,
		PairType:  c.pool.PairType,
		Side:      side,
		Denom:     c.pool.BaseDenom,
		AmountIn:  in,
		AmountOut: out,
		Fee:       fee,
		MidPrice:  c.mid,
	}
	switch {
	case side == SideBuy && out.IsPositive():
		leg.ExecPrice = in.DivRound(out, divPrecision)
	case side == SideSell && in.IsPositive():
		leg.ExecPrice = out.DivRound(in, divPrecision)
	}
	leg.PriceImpact = priceImpact(side, leg.ExecPrice, c.mid)
	return leg
}

func exponentOf(tokens map[string]model.Token, denom string) int32 {
	if t, ok := tokens[denom]; ok {
		return t.Exponent
	}
	return model.DefaultExponent
}
