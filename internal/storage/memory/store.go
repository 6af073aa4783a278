// Package memory is an in-process Store with the same conflict semantics as the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ammScope/internal/model"
)

type tradeKey struct {
	txHash   string
	poolID   int64
	msgIndex int
}

type barKey struct {
	poolID int64
	bucket int64
}

// Store keeps all rows in maps guarded by one mutex.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	pools   map[string]model.Pool
	tokens  map[string]model.Token
	trades  map[tradeKey]model.Trade
	order   []tradeKey
	states  map[int64]model.PoolState
	bars    map[barKey]model.Bar
	cursors map[string]int64
}

func New() *Store {
	return &Store{
		pools:   make(map[string]model.Pool),
		tokens:  make(map[string]model.Token),
		trades:  make(map[tradeKey]model.Trade),
		states:  make(map[int64]model.PoolState),
		bars:    make(map[barKey]model.Bar),
		cursors: make(map[string]int64),
	}
}

func (s *Store) UpsertPool(_ context.Context, pool model.Pool) (model.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.pools[pool.Address]; ok {
		return existing, nil
	}
	s.nextID++
	pool.ID = s.nextID
	pool.BaseExponent, pool.QuoteExponent, pool.QuoteIsNative = 0, 0, false
	s.pools[pool.Address] = pool
	return pool, nil
}

func (s *Store) PoolByAddress(_ context.Context, address string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[address]
	if !ok {
		return nil, nil
	}
	return &pool, nil
}

func (s *Store) PoolsByBase(_ context.Context, denom, quoteDenom string) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Pool
	for _, pool := range s.pools {
		if pool.BaseDenom == denom && pool.QuoteDenom == quoteDenom {
			out = append(out, pool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertToken(_ context.Context, token model.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.Denom]; ok {
		return false, nil
	}
	s.tokens[token.Denom] = token
	return true, nil
}

func (s *Store) Tokens(_ context.Context, denoms []string) (map[string]model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Token, len(denoms))
	for _, denom := range denoms {
		if token, ok := s.tokens[denom]; ok {
			out[denom] = token
		}
	}
	return out, nil
}

func (s *Store) InsertTrade(_ context.Context, trade model.Trade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTrade(trade), nil
}

// RecordSwap inserts the trade and, when it is new, merges bar under the same lock.
func (s *Store) RecordSwap(_ context.Context, trade model.Trade, bar model.BarUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.insertTrade(trade) {
		return false, nil
	}
	s.mergeBar(bar)
	return true, nil
}

func (s *Store) insertTrade(trade model.Trade) bool {
	key := tradeKey{txHash: trade.TxHash, poolID: trade.PoolID, msgIndex: trade.MsgIndex}
	if _, ok := s.trades[key]; ok {
		return false
	}
	s.trades[key] = trade
	s.order = append(s.order, key)
	return true
}

func (s *Store) UpsertPoolState(_ context.Context, state model.PoolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.states[state.PoolID]; ok && state.Position.Less(existing.Position) {
		return nil
	}
	s.states[state.PoolID] = state
	return nil
}

func (s *Store) PoolState(_ context.Context, poolID int64) (*model.PoolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[poolID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *Store) UpsertOHLCV1m(_ context.Context, update model.BarUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeBar(update)
	return nil
}

func (s *Store) mergeBar(update model.BarUpdate) {
	update.Bucket = update.Bucket.UTC().Truncate(time.Minute)
	key := barKey{poolID: update.PoolID, bucket: update.Bucket.Unix()}
	bar, ok := s.bars[key]
	if !ok {
		s.bars[key] = model.NewBar(update)
		return
	}
	bar.Merge(update)
	s.bars[key] = bar
}

func (s *Store) Bars(_ context.Context, poolIDs []int64, from, to time.Time) ([]model.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := idSet(poolIDs)
	var out []model.Bar
	for key, bar := range s.bars {
		if _, ok := ids[key.poolID]; !ok {
			continue
		}
		if bar.Bucket.Before(from) || !bar.Bucket.Before(to) {
			continue
		}
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket.Equal(out[j].Bucket) {
			return out[i].PoolID < out[j].PoolID
		}
		return out[i].Bucket.Before(out[j].Bucket)
	})
	return out, nil
}

func (s *Store) LastBarBefore(_ context.Context, poolIDs []int64, t time.Time) (*model.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := idSet(poolIDs)
	var best *model.Bar
	for key, bar := range s.bars {
		if _, ok := ids[key.poolID]; !ok || !bar.Bucket.Before(t) {
			continue
		}
		if best == nil || bar.Bucket.After(best.Bucket) || (bar.Bucket.Equal(best.Bucket) && best.CloseAt.Less(bar.CloseAt)) {
			b := bar
			best = &b
		}
	}
	return best, nil
}

func (s *Store) LatestBar(ctx context.Context, poolID int64) (*model.Bar, error) {
	return s.LastBarBefore(ctx, []int64{poolID}, time.Unix(1<<40, 0))
}

func (s *Store) TradesByTx(_ context.Context, txHash string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Trade
	for _, key := range s.order {
		if key.txHash == txHash {
			out = append(out, s.trades[key])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MsgIndex < out[j].MsgIndex })
	return out, nil
}

func (s *Store) LoadCursor(_ context.Context, name string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.cursors[name]
	return h, ok, nil
}

func (s *Store) SaveCursor(_ context.Context, name string, height int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = height
	return nil
}

// Trades returns all trades in insertion order.
func (s *Store) Trades() []model.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Trade, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.trades[key])
	}
	return out
}

// Pools returns all pools ordered by id.
func (s *Store) Pools() []model.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func idSet(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
