// Package ingest turns chain heights into pools, trades, reserves and minute bars.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ammScope/internal/directory"
	"ammScope/internal/events"
	"ammScope/internal/metadata"
	"ammScope/internal/metrics"
	"ammScope/internal/model"
	"ammScope/internal/notify"
	"ammScope/internal/scheduler"
	"ammScope/internal/storage"
)

const (
	DefaultPrimaryCeiling = 12
	DefaultFlushThreshold = 256
)

// ErrTaskFailures is returned when a height finished with failed tasks.
var ErrTaskFailures = errors.New("height finished with failed tasks")

// Config holds pipeline settings.
type Config struct {
	PrimaryCeiling int
	FlushThreshold int
	// TolerateTaskFailures lets a height complete even when some tasks failed.
	TolerateTaskFailures bool
}

// Toucher is told about every pool that received a new trade.
type Toucher interface {
	Touch(pool model.Pool)
}

// Summary describes one processed height.
type Summary struct {
	Height  int64
	Actions int
	Trades  int
	Skipped int
	Failed  int
	Flushes int
	Pools   []string
}

// Pipeline processes one block at a time. It is safe to reuse across heights
// but not to run concurrently on two heights.
type Pipeline struct {
	cfg       Config
	extractor *events.Extractor
	store     storage.Writer
	dir       *directory.Directory
	meta      *metadata.Queue
	sinks     []storage.TradeSink
	publisher notify.Publisher
	toucher   Toucher
	metrics   *metrics.Ingest
	logger    *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

func WithMetadata(q *metadata.Queue) Option {
	return func(p *Pipeline) { p.meta = q }
}

func WithSinks(sinks ...storage.TradeSink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

func WithPublisher(pub notify.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithToucher(t Toucher) Option {
	return func(p *Pipeline) { p.toucher = t }
}

func WithMetrics(m *metrics.Ingest) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(cfg Config, extractor *events.Extractor, store storage.Writer, dir *directory.Directory, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PrimaryCeiling <= 0 {
		cfg.PrimaryCeiling = DefaultPrimaryCeiling
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = DefaultFlushThreshold
	}
	p := &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		store:     store,
		dir:       dir,
		publisher: notify.Nop{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessBlock runs every action of the block. Writes are idempotent, so a
// height that returns an error can be processed again from scratch.
func (p *Pipeline) ProcessBlock(ctx context.Context, block model.Block) (Summary, error) {
	start := time.Now()
	run := &blockRun{
		p:       p,
		block:   block,
		touched: make(map[string]struct{}),
	}
	run.summary.Height = block.Height

	batcher := scheduler.NewBatcher(p.cfg.FlushThreshold, run.flush)
	err := p.extractor.Walk(block, func(action events.Action) error {
		run.summary.Actions++
		if p.metrics != nil {
			p.metrics.Actions.WithLabelValues(string(action.Kind)).Inc()
		}
		if p.meta != nil {
			p.meta.Add(action.Denoms()...)
		}
		return batcher.Add(ctx, action)
	})
	if err == nil {
		err = batcher.Flush(ctx)
	}
	run.summary.Flushes = batcher.Flushes()
	if err != nil {
		return run.summary, fmt.Errorf("height %d: %w", block.Height, err)
	}

	if p.meta != nil {
		if failed := p.meta.Drain(ctx); failed > 0 && p.metrics != nil {
			p.metrics.TaskFailures.WithLabelValues("metadata").Add(float64(failed))
		}
		if found, err := p.dir.RefreshTokens(ctx); err != nil {
			p.logger.Warn("token exponent refresh failed", zap.Int64("height", block.Height), zap.Error(err))
		} else if found > 0 {
			p.logger.Debug("token exponents refreshed", zap.Int64("height", block.Height), zap.Int("tokens", found))
		}
	}

	p.deliver(ctx, run.trades)
	run.summary.Trades = len(run.trades)
	for addr := range run.touched {
		run.summary.Pools = append(run.summary.Pools, addr)
	}

	if run.summary.Failed > 0 && !p.cfg.TolerateTaskFailures {
		return run.summary, fmt.Errorf("height %d: %d tasks: %w", block.Height, run.summary.Failed, ErrTaskFailures)
	}

	if err := p.publisher.Publish(ctx, notify.TopicBlocks, notify.BlockUpdate{
		Height: block.Height,
		Time:   block.Time,
		Pools:  run.summary.Pools,
		Trades: run.summary.Trades,
	}); err != nil {
		p.logger.Warn("publish block update failed", zap.Int64("height", block.Height), zap.Error(err))
	}

	if p.metrics != nil {
		p.metrics.Heights.Inc()
		p.metrics.LastHeight.Set(float64(block.Height))
		p.metrics.HeightDuration.Observe(time.Since(start).Seconds())
	}
	return run.summary, nil
}

func (p *Pipeline) deliver(ctx context.Context, trades []model.Trade) {
	if len(trades) == 0 {
		return
	}
	for _, sink := range p.sinks {
		if err := sink.PutTrades(ctx, trades); err != nil {
			p.logger.Warn("trade sink failed", zap.Int("trades", len(trades)), zap.Error(err))
		}
	}
}

// blockRun carries the per-height state shared by the tasks of one block.
type blockRun struct {
	p     *Pipeline
	block model.Block

	mu      sync.Mutex
	summary Summary
	trades  []model.Trade
	touched map[string]struct{}
}

// flush runs one batch of actions: pool creations first, then a directory
// prefetch for the remaining pools, then the remaining actions.
func (r *blockRun) flush(ctx context.Context, actions []events.Action) error {
	var creates, rest []events.Action
	for _, a := range actions {
		if a.Kind == events.KindCreatePair {
			creates = append(creates, a)
		} else {
			rest = append(rest, a)
		}
	}

	r.runStage(ctx, "create_pair", creates)

	if len(rest) > 0 {
		addrs := make([]string, 0, len(rest))
		for _, a := range rest {
			addrs = append(addrs, a.PoolAddress())
		}
		r.p.dir.Prefetch(ctx, addrs)
	}

	r.runStage(ctx, "primary", rest)
	return ctx.Err()
}

func (r *blockRun) runStage(ctx context.Context, stage string, actions []events.Action) {
	if len(actions) == 0 {
		return
	}
	tasks := make([]scheduler.Task, len(actions))
	for i, a := range actions {
		tasks[i] = func(ctx context.Context) error {
			return r.handle(ctx, a)
		}
	}

	for i, err := range scheduler.RunAll(ctx, tasks, r.p.cfg.PrimaryCeiling) {
		if err == nil {
			continue
		}
		a := actions[i]
		r.mu.Lock()
		r.summary.Failed++
		r.mu.Unlock()
		if r.p.metrics != nil {
			r.p.metrics.TaskFailures.WithLabelValues(stage).Inc()
		}
		r.p.logger.Error("task failed",
			zap.String("stage", stage),
			zap.String("kind", string(a.Kind)),
			zap.String("pool", a.PoolAddress()),
			zap.Int64("height", a.Height),
			zap.Int("tx_index", a.TxIndex),
			zap.Int("msg_index", a.MsgIndex),
			zap.Error(err),
		)
	}
}

func (r *blockRun) handle(ctx context.Context, a events.Action) error {
	switch a.Kind {
	case events.KindCreatePair:
		return r.createPool(ctx, a)
	case events.KindSwap, events.KindProvide, events.KindWithdraw:
		return r.recordTrade(ctx, a)
	}
	return nil
}

func (r *blockRun) skip() {
	r.mu.Lock()
	r.summary.Skipped++
	r.mu.Unlock()
}

func (r *blockRun) touch(pool model.Pool) {
	r.mu.Lock()
	r.touched[pool.Address] = struct{}{}
	r.mu.Unlock()
	if r.p.toucher != nil {
		r.p.toucher.Touch(pool)
	}
}
