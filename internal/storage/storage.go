// Package storage defines the persistence contracts of the indexer.
package storage

import (
	"context"
	"time"

	"ammScope/internal/model"
)

// PoolReader resolves pools and their token metadata.
type PoolReader interface {
	PoolByAddress(ctx context.Context, address string) (*model.Pool, error)
	// PoolsByBase returns pools whose base is denom and whose quote is quoteDenom.
	PoolsByBase(ctx context.Context, denom, quoteDenom string) ([]model.Pool, error)
	Tokens(ctx context.Context, denoms []string) (map[string]model.Token, error)
}

// StateReader reads the latest reserves of a pool.
type StateReader interface {
	PoolState(ctx context.Context, poolID int64) (*model.PoolState, error)
}

// BarReader reads one-minute bars.
type BarReader interface {
	// Bars returns bars of the given pools with bucket in [from, to), ordered by bucket.
	Bars(ctx context.Context, poolIDs []int64, from, to time.Time) ([]model.Bar, error)
	// LastBarBefore returns the latest bar of the given pools with bucket before t.
	LastBarBefore(ctx context.Context, poolIDs []int64, t time.Time) (*model.Bar, error)
	// LatestBar returns the most recent bar of a pool.
	LatestBar(ctx context.Context, poolID int64) (*model.Bar, error)
}

// TradeReader reads stored trades.
type TradeReader interface {
	// TradesByTx returns the trades of a transaction ordered by message index.
	TradesByTx(ctx context.Context, txHash string) ([]model.Trade, error)
}

// Writer is the idempotent write surface used during ingestion.
type Writer interface {
	// UpsertPool inserts the pool unless its address exists and returns the stored row.
	UpsertPool(ctx context.Context, pool model.Pool) (model.Pool, error)
	// UpsertToken inserts the token unless its denom exists.
	UpsertToken(ctx context.Context, token model.Token) (bool, error)
	// InsertTrade reports whether the trade was new by (tx hash, pool, message index).
	InsertTrade(ctx context.Context, trade model.Trade) (bool, error)
	// RecordSwap inserts the trade and, only when it is new, merges bar. Both
	// writes commit together or not at all.
	RecordSwap(ctx context.Context, trade model.Trade, bar model.BarUpdate) (bool, error)
	// UpsertPoolState overwrites the pool's reserves unless the stored position is later.
	UpsertPoolState(ctx context.Context, state model.PoolState) error
	// UpsertOHLCV1m merges a trade into its one-minute bar.
	UpsertOHLCV1m(ctx context.Context, update model.BarUpdate) error
}

// CursorStore persists the last fully processed height under a name.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (int64, bool, error)
	SaveCursor(ctx context.Context, name string, height int64) error
}

// Store is the full storage surface.
type Store interface {
	PoolReader
	StateReader
	BarReader
	TradeReader
	Writer
	CursorStore
}

// TradeSink receives every newly inserted trade.
type TradeSink interface {
	PutTrades(ctx context.Context, trades []model.Trade) error
}
