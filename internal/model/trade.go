package model

import "time"

// Action is the kind of pool interaction a trade row records.
type Action string

const (
	ActionSwap     Action = "swap"
	ActionProvide  Action = "provide"
	ActionWithdraw Action = "withdraw"
)

// Direction is the side of a trade relative to the pool's base asset.
type Direction string

const (
	DirectionBuy      Direction = "buy"
	DirectionSell     Direction = "sell"
	DirectionProvide  Direction = "provide"
	DirectionWithdraw Direction = "withdraw"
)

// Trade is an immutable swap or liquidity record keyed by (TxHash, PoolID, MsgIndex).
// Amounts are raw integer strings; empty means unknown.
type Trade struct {
	PoolID         int64     `json:"pool_id"`
	PoolAddress    string    `json:"pool_address"`
	Action         Action    `json:"action"`
	Direction      Direction `json:"direction"`
	OfferDenom     string    `json:"offer_denom,omitempty"`
	OfferAmount    string    `json:"offer_amount,omitempty"`
	AskDenom       string    `json:"ask_denom,omitempty"`
	ReturnAmount   string    `json:"return_amount,omitempty"`
	Reserve1Denom  string    `json:"reserve1_denom,omitempty"`
	Reserve1Amount string    `json:"reserve1_amount,omitempty"`
	Reserve2Denom  string    `json:"reserve2_denom,omitempty"`
	Reserve2Amount string    `json:"reserve2_amount,omitempty"`
	Signer         string    `json:"signer,omitempty"`
	IsRouter       bool      `json:"is_router"`
	Height         int64     `json:"height"`
	TxHash         string    `json:"tx_hash"`
	TxIndex        int       `json:"tx_index"`
	MsgIndex       int       `json:"msg_index"`
	Time           time.Time `json:"time"`
}

// Position returns the chain position of the trade.
func (t Trade) Position() Position {
	return Position{Height: t.Height, TxIndex: t.TxIndex, MsgIndex: t.MsgIndex}
}
