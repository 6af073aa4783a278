package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// retryPolicy retries a height-level step with doubling delays capped at
// maxRetryBackoff. Retries is the number of attempts after the first.
type retryPolicy struct {
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

func newRetryPolicy(retries int, backoff time.Duration, logger *zap.Logger) retryPolicy {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return retryPolicy{retries: retries, backoff: backoff, logger: logger}
}

// do runs fn until it succeeds or attempts run out. Each failure is logged
// with step and fields. Context cancellation is returned without retrying.
func (p retryPolicy) do(ctx context.Context, step string, fn func(context.Context) error, fields ...zap.Field) error {
	delay := p.backoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}
		if attempt > p.retries {
			p.logger.Error(step+" failed", append(fields, zap.Int("attempts", attempt), zap.Error(err))...)
			return err
		}
		p.logger.Warn(step+" failed, retrying",
			append(fields, zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))...)

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}
