package clickhouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ammScope/internal/model"
)

type fakeConn struct {
	driver.Conn

	mu      sync.Mutex
	fail    int
	sent    [][]any
	batches int
	closed  bool
}

func (c *fakeConn) PrepareBatch(context.Context, string, ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	if c.fail > 0 {
		c.fail--
		return nil, errors.New("connection reset")
	}
	return &fakeBatch{conn: c}, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) rows() [][]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]any(nil), c.sent...)
}

type fakeBatch struct {
	driver.Batch

	conn *fakeConn
	rows [][]any
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Abort() error { return nil }

func (b *fakeBatch) Send() error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()
	b.conn.sent = append(b.conn.sent, b.rows...)
	return nil
}

func trade(msgIndex int) model.Trade {
	return model.Trade{
		Time:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Height:      100,
		TxHash:      "ABCDEF",
		MsgIndex:    msgIndex,
		PoolID:      1,
		PoolAddress: "zig1pair",
		Action:      model.ActionSwap,
		Direction:   model.DirectionBuy,
		IsRouter:    true,
	}
}

func TestSinkFlushesOnClose(t *testing.T) {
	conn := &fakeConn{}
	sink := NewSink(conn, Config{BatchMaxRows: 100, BatchMaxInterval: time.Hour}, zaptest.NewLogger(t))

	require.NoError(t, sink.PutTrades(context.Background(), []model.Trade{trade(0), trade(1)}))
	require.NoError(t, sink.Close(context.Background()))

	rows := conn.rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "ABCDEF", rows[0][2])
	assert.Equal(t, uint32(1), rows[1][4])
	assert.Equal(t, "swap", rows[0][7])
	assert.Equal(t, uint8(1), rows[0][14])
	assert.True(t, conn.closed)

	assert.Error(t, sink.PutTrades(context.Background(), []model.Trade{trade(2)}))
}

func TestSinkFlushesFullBatchAndRetries(t *testing.T) {
	conn := &fakeConn{fail: 1}
	sink := NewSink(conn, Config{
		BatchMaxRows:     2,
		BatchMaxInterval: time.Hour,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
	}, zaptest.NewLogger(t))
	defer sink.Close(context.Background())

	require.NoError(t, sink.PutTrades(context.Background(), []model.Trade{trade(0), trade(1)}))
	require.Eventually(t, func() bool { return len(conn.rows()) == 2 }, time.Second, 5*time.Millisecond)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Equal(t, 2, conn.batches)
}
