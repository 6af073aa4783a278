package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"ammScope/internal/model"
	"ammScope/internal/storage/memory"
)

type fakeSource struct {
	mu       sync.Mutex
	blocks   map[int64]model.Block
	latest   int64
	failOnce map[int64]bool
	fetched  []int64
}

func (f *fakeSource) FetchBlock(_ context.Context, height int64) (model.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce[height] {
		delete(f.failOnce, height)
		return model.Block{}, errors.New("upstream unavailable")
	}
	f.fetched = append(f.fetched, height)
	if b, ok := f.blocks[height]; ok {
		return b, nil
	}
	return model.Block{Height: height, Time: blockTime}, nil
}

type recordingCursor struct {
	heights []int64
}

func (c *recordingCursor) Load(context.Context) (int64, bool, error) {
	if len(c.heights) == 0 {
		return 0, false, nil
	}
	return c.heights[len(c.heights)-1], true, nil
}

func (c *recordingCursor) Save(_ context.Context, height int64) error {
	c.heights = append(c.heights, height)
	return nil
}

func (f *fakeSource) LatestHeight(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func TestRunnerProcessesRangeAndSavesCursor(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	source := &fakeSource{
		blocks: map[int64]model.Block{
			1: blockAt(1, createPairTx()),
			2: blockAt(2, swapTx("SWAP", native, "100", meme, "9", meme+":5000, 700"+native)),
		},
		failOnce: map[int64]bool{2: true},
	}
	cursor := StoreCursor{Store: store, Name: "ingest"}

	runner := NewRunner(RunConfig{
		FromHeight:   1,
		ToHeight:     3,
		BatchSize:    2,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, source, newPipeline(t, store, nil, Config{}), cursor, zaptest.NewLogger(t))

	require.NoError(t, runner.Run(ctx))
	assert.Equal(t, []int64{1, 2, 3}, source.fetched)
	assert.Len(t, store.Trades(), 1)

	last, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), last)

	// A second run resumes after the cursor and has nothing to do.
	source.fetched = nil
	require.NoError(t, runner.Run(ctx))
	assert.Empty(t, source.fetched)
}

func TestRunnerStopsOnPersistentFailure(t *testing.T) {
	store := memory.New()
	source := &fakeSource{failOnce: map[int64]bool{5: true}}
	runner := NewRunner(RunConfig{FromHeight: 5, ToHeight: 6, BatchSize: 10, MaxRetries: 0},
		source, newPipeline(t, store, nil, Config{}), StoreCursor{Store: store, Name: "ingest"}, nil)

	err := runner.Run(context.Background())
	require.Error(t, err)

	_, ok, _ := store.LoadCursor(context.Background(), "ingest")
	assert.False(t, ok)
}

func TestRunnerFollowStopsWithContext(t *testing.T) {
	store := memory.New()
	source := &fakeSource{latest: 2}
	runner := NewRunner(RunConfig{FromHeight: 1, BatchSize: 1, PollInterval: 5 * time.Millisecond},
		source, newPipeline(t, store, nil, Config{}), nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := runner.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []int64{1, 2}, source.fetched)
}

func TestFileCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	cursor := &FileCursor{Path: filepath.Join(t.TempDir(), "state", "cursor.json")}

	_, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cursor.Save(ctx, 1234))
	last, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1234), last)
}

func TestRetryPolicyStopsAfterRetries(t *testing.T) {
	calls := 0
	policy := newRetryPolicy(2, time.Millisecond, zaptest.NewLogger(t))
	err := policy.do(context.Background(), "process height", func(context.Context) error {
		calls++
		return errors.New("block_results unavailable")
	}, zap.Int64("height", 100))
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyRecoversFromTransientFetch(t *testing.T) {
	calls := 0
	policy := newRetryPolicy(3, time.Millisecond, zaptest.NewLogger(t))
	err := policy.do(context.Background(), "fetch latest height", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyDoesNotRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := newRetryPolicy(5, time.Hour, nil)
	err := policy.do(ctx, "process height", func(context.Context) error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunnerSavesCursorOnAlignedBoundaries(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	saved := &recordingCursor{}
	runner := NewRunner(RunConfig{FromHeight: 7, ToHeight: 21, BatchSize: 10},
		&fakeSource{}, newPipeline(t, store, nil, Config{}), saved, zaptest.NewLogger(t))

	require.NoError(t, runner.Run(ctx))
	assert.Equal(t, []int64{9, 19, 21}, saved.heights)
}
