package stats

import (
	"github.com/shopspring/decimal"

	"ammScope/internal/model"
)

// accumulator folds minute bars, ordered by bucket, into window totals.
type accumulator struct {
	seen   bool
	open   decimal.Decimal
	close  decimal.Decimal
	high   decimal.Decimal
	low    decimal.Decimal
	volume decimal.Decimal
	trades int64
}

func newAccumulator() *accumulator {
	return &accumulator{volume: decimal.Zero}
}

func (a *accumulator) add(bar model.Bar) {
	if !a.seen {
		a.seen = true
		a.open, a.high, a.low = bar.Open, bar.High, bar.Low
	}
	if bar.High.GreaterThan(a.high) {
		a.high = bar.High
	}
	if bar.Low.LessThan(a.low) {
		a.low = bar.Low
	}
	a.close = bar.Close
	a.volume = a.volume.Add(bar.Volume)
	a.trades += bar.Trades
}
