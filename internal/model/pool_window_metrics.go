package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolWindowMetrics summarizes one pool over a trailing window. Amounts are
// display units of the quote denom; nil pointers mean the value is unknown.
type PoolWindowMetrics struct {
	PoolAddress    string           `json:"pool_address"`
	PairType       string           `json:"pair_type"`
	WindowSizeSecs int64            `json:"window_size_secs"`
	WindowStart    time.Time        `json:"window_start"`
	WindowEnd      time.Time        `json:"window_end"`
	SwapCount      int64            `json:"swap_count"`
	Volume         decimal.Decimal  `json:"volume"`
	Fee            decimal.Decimal  `json:"fee"`
	Open           *decimal.Decimal `json:"open"`
	Close          *decimal.Decimal `json:"close"`
	High           *decimal.Decimal `json:"high"`
	Low            *decimal.Decimal `json:"low"`
	PriceChange    *decimal.Decimal `json:"price_change"`
	TVL            *decimal.Decimal `json:"tvl"`
	FeeRate        *decimal.Decimal `json:"fee_rate"`
	APR            *decimal.Decimal `json:"apr"`
	FeeMethod      string           `json:"fee_method"`
	TVLMethod      string           `json:"tvl_method"`
}
