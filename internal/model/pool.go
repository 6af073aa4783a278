package model

import "time"

// Pool is an AMM pair contract. Base and quote are fixed at creation.
type Pool struct {
	ID            int64     `json:"id"`
	Address       string    `json:"address"`
	BaseDenom     string    `json:"base_denom"`
	QuoteDenom    string    `json:"quote_denom"`
	PairType      string    `json:"pair_type"`
	Factory       string    `json:"factory"`
	CreatedHeight int64     `json:"created_height"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedTxHash string    `json:"created_tx_hash"`
	Signer        string    `json:"signer"`

	// Resolved by the pool directory, not persisted on the pool row.
	BaseExponent  int32 `json:"base_exponent"`
	QuoteExponent int32 `json:"quote_exponent"`
	QuoteIsNative bool  `json:"quote_is_native"`
}

// PoolState is the latest known reserve pair of a pool in raw integer units.
type PoolState struct {
	PoolID         int64     `json:"pool_id"`
	BaseDenom      string    `json:"base_denom"`
	QuoteDenom     string    `json:"quote_denom"`
	Reserve1Denom  string    `json:"reserve1_denom"`
	Reserve1Amount string    `json:"reserve1_amount"`
	Reserve2Denom  string    `json:"reserve2_denom"`
	Reserve2Amount string    `json:"reserve2_amount"`
	Position       Position  `json:"position"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Reserve returns the raw reserve amount for denom, if present.
func (s PoolState) Reserve(denom string) (string, bool) {
	switch denom {
	case "":
		return "", false
	case s.Reserve1Denom:
		return s.Reserve1Amount, s.Reserve1Amount != ""
	case s.Reserve2Denom:
		return s.Reserve2Amount, s.Reserve2Amount != ""
	}
	return "", false
}
