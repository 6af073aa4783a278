// Package clickhouse streams newly inserted trades into a ClickHouse table for analytics.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"ammScope/internal/model"
)

// DDL creates the trade table the sink writes to.
const DDL = `
CREATE TABLE IF NOT EXISTS amm_trades (
	event_time      DateTime64(3, 'UTC'),
	height          Int64,
	tx_hash         String,
	tx_index        UInt32,
	msg_index       UInt32,
	pool_id         Int64,
	pool_address    String,
	action          LowCardinality(String),
	direction       LowCardinality(String),
	offer_denom     String,
	offer_amount    String,
	ask_denom       String,
	return_amount   String,
	signer          String,
	is_router       UInt8
) ENGINE = ReplacingMergeTree
ORDER BY (pool_id, tx_hash, msg_index)`

// Config controls batching and retries.
type Config struct {
	DSN              string
	BatchMaxRows     int
	BatchMaxInterval time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
}

// Open connects and pings ClickHouse.
func Open(ctx context.Context, dsn string) (ch.Conn, error) {
	opts, err := ch.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Compression == nil {
		opts.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, DDL); err != nil {
		return nil, fmt.Errorf("create clickhouse table: %w", err)
	}
	return conn, nil
}

// Sink buffers trades and writes them in batches from a background loop.
type Sink struct {
	conn   ch.Conn
	cfg    Config
	logger *zap.Logger

	inCh      chan model.Trade
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSink(conn ch.Conn, cfg Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchMaxRows <= 0 {
		cfg.BatchMaxRows = 1000
	}
	if cfg.BatchMaxInterval <= 0 {
		cfg.BatchMaxInterval = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	s := &Sink{
		conn:     conn,
		cfg:      cfg,
		logger:   logger,
		inCh:     make(chan model.Trade, 4*cfg.BatchMaxRows),
		closedCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// PutTrades enqueues trades; it blocks while the buffer is full.
func (s *Sink) PutTrades(ctx context.Context, trades []model.Trade) error {
	for _, trade := range trades {
		select {
		case <-s.closedCh:
			return errors.New("clickhouse sink closed")
		default:
		}
		select {
		case s.inCh <- trade:
		case <-s.closedCh:
			return errors.New("clickhouse sink closed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close flushes buffered trades and stops the loop.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closedCh)
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return s.conn.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) loop() {
	defer s.wg.Done()

	batch := make([]model.Trade, 0, s.cfg.BatchMaxRows)
	ticker := time.NewTicker(s.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insertBatch(context.Background(), batch); err != nil {
			s.logger.Error("clickhouse insert failed", zap.Int("rows", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case trade := <-s.inCh:
			batch = append(batch, trade)
			if len(batch) >= s.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.closedCh:
			for {
				select {
				case trade := <-s.inCh:
					batch = append(batch, trade)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *Sink) insertBatch(ctx context.Context, trades []model.Trade) error {
	backoff := s.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if lastErr = s.send(ctx, trades); lastErr == nil {
			return nil
		}
		s.logger.Warn("clickhouse batch attempt failed", zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	return lastErr
}

func (s *Sink) send(ctx context.Context, trades []model.Trade) error {
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO amm_trades`)
	if err != nil {
		return err
	}
	for i := range trades {
		t := &trades[i]
		var router uint8
		if t.IsRouter {
			router = 1
		}
		if err := batch.Append(
			t.Time.UTC(),
			t.Height,
			t.TxHash,
			uint32(t.TxIndex),
			uint32(t.MsgIndex),
			t.PoolID,
			t.PoolAddress,
			string(t.Action),
			string(t.Direction),
			t.OfferDenom,
			t.OfferAmount,
			t.AskDenom,
			t.ReturnAmount,
			t.Signer,
			router,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}
