package scheduler

import "context"

// Batcher accumulates items and hands them to a flush function whenever the
// pending count reaches the threshold, so pending never exceeds it.
type Batcher[T any] struct {
	threshold int
	flush     func(ctx context.Context, items []T) error
	pending   []T
	flushes   int
}

// NewBatcher creates a batcher. A threshold <= 0 disables early flushing.
func NewBatcher[T any](threshold int, flush func(ctx context.Context, items []T) error) *Batcher[T] {
	return &Batcher[T]{threshold: threshold, flush: flush}
}

// Add queues an item and flushes when the threshold is reached.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	b.pending = append(b.pending, item)
	if b.threshold > 0 && len(b.pending) >= b.threshold {
		return b.Flush(ctx)
	}
	return nil
}

// Flush drains and runs whatever is pending.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	items := b.pending
	b.pending = nil
	b.flushes++
	return b.flush(ctx, items)
}

// Pending is the number of queued items not yet flushed.
func (b *Batcher[T]) Pending() int {
	return len(b.pending)
}

// Flushes is the number of non-empty flushes performed so far.
func (b *Batcher[T]) Flushes() int {
	return b.flushes
}
