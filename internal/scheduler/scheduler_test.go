package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAllPositionalErrors(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32
	tasks := []Task{
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return boom },
		func(context.Context) error { ran.Add(1); panic("bad task") },
		nil,
		func(context.Context) error { ran.Add(1); return nil },
	}

	errs := RunAll(context.Background(), tasks, 2)
	require.Len(t, errs, 5)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	var pe *PanicError
	assert.ErrorAs(t, errs[2], &pe)
	assert.Equal(t, "bad task", pe.Value)
	assert.NoError(t, errs[3])
	assert.NoError(t, errs[4])
	assert.Equal(t, int32(4), ran.Load())
	assert.Equal(t, 2, Failed(errs))
}

func TestRunAllRespectsCeiling(t *testing.T) {
	const ceiling = 3
	var active, peak atomic.Int32
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil
		}
	}

	errs := RunAll(context.Background(), tasks, ceiling)
	assert.Equal(t, 0, Failed(errs))
	assert.LessOrEqual(t, peak.Load(), int32(ceiling))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunAllEmpty(t *testing.T) {
	assert.Empty(t, RunAll(context.Background(), nil, 4))
}

func TestBatcherFlushesAtThreshold(t *testing.T) {
	const threshold = 4
	var flushed [][]int
	b := NewBatcher(threshold, func(_ context.Context, items []int) error {
		flushed = append(flushed, items)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Add(ctx, i))
		assert.Less(t, b.Pending(), threshold)
	}
	assert.Equal(t, 2, b.Flushes())
	assert.Equal(t, 2, b.Pending())

	require.NoError(t, b.Flush(ctx))
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, flushed)
	assert.Equal(t, 3, b.Flushes())
}

func TestBatcherPropagatesFlushError(t *testing.T) {
	b := NewBatcher(1, func(context.Context, []string) error { return context.Canceled })
	assert.ErrorIs(t, b.Add(context.Background(), "x"), context.Canceled)
}
