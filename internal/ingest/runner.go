package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ammScope/internal/model"
)

// BlockSource fetches normalized blocks from the chain.
type BlockSource interface {
	FetchBlock(ctx context.Context, height int64) (model.Block, error)
	LatestHeight(ctx context.Context) (int64, error)
}

// RunConfig holds runtime settings for the height loop.
type RunConfig struct {
	FromHeight int64
	// ToHeight 0 follows the chain head, polling every PollInterval.
	ToHeight     int64
	BatchSize    int64
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
}

// Runner processes heights sequentially and saves the cursor after each batch.
type Runner struct {
	cfg      RunConfig
	source   BlockSource
	pipeline *Pipeline
	cursor   Cursor
	retry    retryPolicy
	logger   *zap.Logger
}

func NewRunner(cfg RunConfig, source BlockSource, pipeline *Pipeline, cursor Cursor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Runner{
		cfg:      cfg,
		source:   source,
		pipeline: pipeline,
		cursor:   cursor,
		retry:    newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, logger),
		logger:   logger,
	}
}

// Run executes the height loop until the range is done or ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("block source is nil")
	}
	if r.pipeline == nil {
		return fmt.Errorf("pipeline is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	from := r.cfg.FromHeight
	if r.cursor != nil {
		last, ok, err := r.cursor.Load(ctx)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from cursor", zap.Int64("last_processed", last), zap.Int64("from", from))
		}
	}

	follow := r.cfg.ToHeight == 0
	for {
		to := r.cfg.ToHeight
		if follow {
			latest, err := r.latestWithRetry(ctx)
			if err != nil {
				return fmt.Errorf("get latest height: %w", err)
			}
			to = latest
		}

		if from > to {
			if !follow {
				r.logger.Info("nothing to sync", zap.Int64("from", from), zap.Int64("to", to))
				return nil
			}
			if err := sleep(ctx, r.cfg.PollInterval); err != nil {
				return err
			}
			continue
		}

		if err := r.syncRange(ctx, from, to); err != nil {
			return err
		}
		from = to + 1
		if !follow {
			return nil
		}
	}
}

func (r *Runner) syncRange(ctx context.Context, from, to int64) error {
	ranges, err := CursorBatches(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, hr := range ranges {
		trades := 0
		for height := hr.From; height <= hr.To; height++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := r.processWithRetry(ctx, height)
			if err != nil {
				return fmt.Errorf("process height %d: %w", height, err)
			}
			trades += summary.Trades
		}

		if r.cursor != nil {
			err := r.retry.do(ctx, "save cursor", func(ctx context.Context) error {
				return r.cursor.Save(ctx, hr.To)
			}, zap.Int64("height", hr.To))
			if err != nil {
				return fmt.Errorf("save cursor: %w", err)
			}
		}

		r.logger.Info("batch complete", zap.Int("trades", trades), zap.Int64("from", hr.From), zap.Int64("to", hr.To))
	}
	return nil
}

func (r *Runner) processWithRetry(ctx context.Context, height int64) (Summary, error) {
	var summary Summary
	err := r.retry.do(ctx, "process height", func(ctx context.Context) error {
		block, err := r.source.FetchBlock(ctx, height)
		if err != nil {
			return fmt.Errorf("fetch block: %w", err)
		}
		summary, err = r.pipeline.ProcessBlock(ctx, block)
		return err
	}, zap.Int64("height", height))
	return summary, err
}

func (r *Runner) latestWithRetry(ctx context.Context) (int64, error) {
	var latest int64
	err := r.retry.do(ctx, "fetch latest height", func(ctx context.Context) error {
		var err error
		latest, err = r.source.LatestHeight(ctx)
		return err
	})
	return latest, err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
