package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a stored one-minute OHLCV row for a pool.
// OpenAt and CloseAt record the chain position of the trades that set Open and Close.
type Bar struct {
	PoolID  int64           `json:"pool_id"`
	Bucket  time.Time       `json:"bucket"`
	Open    decimal.Decimal `json:"open"`
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Close   decimal.Decimal `json:"close"`
	Volume  decimal.Decimal `json:"volume"`
	Trades  int64           `json:"trades"`
	OpenAt  Position        `json:"open_at"`
	CloseAt Position        `json:"close_at"`
}

// BarUpdate is a single trade's contribution to a one-minute bar.
type BarUpdate struct {
	PoolID   int64
	Bucket   time.Time
	Price    decimal.Decimal
	Volume   decimal.Decimal
	Trades   int64
	Position Position
}

// Merge folds an update into the bar. First trade by chain position sets open,
// the latest sets close.
func (b *Bar) Merge(u BarUpdate) {
	if u.Position.Less(b.OpenAt) {
		b.Open = u.Price
		b.OpenAt = u.Position
	}
	if !u.Position.Less(b.CloseAt) {
		b.Close = u.Price
		b.CloseAt = u.Position
	}
	if u.Price.GreaterThan(b.High) {
		b.High = u.Price
	}
	if u.Price.LessThan(b.Low) {
		b.Low = u.Price
	}
	b.Volume = b.Volume.Add(u.Volume)
	b.Trades += u.Trades
}

// NewBar starts a bar from its first update.
func NewBar(u BarUpdate) Bar {
	return Bar{
		PoolID:  u.PoolID,
		Bucket:  u.Bucket,
		Open:    u.Price,
		High:    u.Price,
		Low:     u.Price,
		Close:   u.Price,
		Volume:  u.Volume,
		Trades:  u.Trades,
		OpenAt:  u.Position,
		CloseAt: u.Position,
	}
}

// Candle is an aggregated bar at an arbitrary timeframe.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
	Trades int64           `json:"trades"`
}
