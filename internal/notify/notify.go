// Package notify publishes ingestion progress and candle updates to subscribers.
package notify

import (
	"context"
	"errors"
	"time"

	"ammScope/internal/model"
)

const (
	TopicBlocks  = "blocks"
	TopicCandles = "candles"
)

// BlockUpdate announces a fully processed height.
type BlockUpdate struct {
	Height int64     `json:"height"`
	Time   time.Time `json:"time"`
	Pools  []string  `json:"pools"`
	Trades int       `json:"trades"`
}

// CandleUpdate carries the latest one-minute bar of a pool.
type CandleUpdate struct {
	PoolID  int64     `json:"pool_id"`
	Address string    `json:"address"`
	Bar     model.Bar `json:"bar"`
}

// Publisher delivers JSON messages on a topic. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Multi fans a message out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every message.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
