// Package metadata queues denoms for low-priority token metadata enrichment.
package metadata

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"ammScope/internal/model"
	"ammScope/internal/scheduler"
	"ammScope/internal/storage"
)

// DefaultCeiling bounds concurrent enrichment calls.
const DefaultCeiling = 4

// Enricher fetches or records metadata for one denom.
type Enricher interface {
	Enrich(ctx context.Context, denom string) error
}

// StoreEnricher records a token row with the default exponent if none exists.
type StoreEnricher struct {
	Store storage.Writer
}

func (e StoreEnricher) Enrich(ctx context.Context, denom string) error {
	_, err := e.Store.UpsertToken(ctx, model.Token{Denom: denom, Exponent: model.DefaultExponent})
	return err
}

// Queue deduplicates denoms across blocks and drains them with bounded concurrency.
// A denom whose enrichment fails is forgotten so a later block retries it.
type Queue struct {
	enricher Enricher
	ceiling  int
	logger   *zap.Logger

	seen    *xsync.Map[string, struct{}]
	mu      sync.Mutex
	pending []string
}

func NewQueue(enricher Enricher, ceiling int, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Queue{
		enricher: enricher,
		ceiling:  ceiling,
		logger:   logger,
		seen:     xsync.NewMap[string, struct{}](),
	}
}

// Add enqueues denoms not seen before and returns how many were new.
func (q *Queue) Add(denoms ...string) int {
	added := 0
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, denom := range denoms {
		if denom == "" {
			continue
		}
		if _, loaded := q.seen.LoadOrStore(denom, struct{}{}); loaded {
			continue
		}
		q.pending = append(q.pending, denom)
		added++
	}
	return added
}

// Pending is the number of denoms waiting for Drain.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain enriches all pending denoms and returns how many failed.
func (q *Queue) Drain(ctx context.Context) int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	if len(batch) == 0 {
		return 0
	}

	tasks := make([]scheduler.Task, len(batch))
	for i, denom := range batch {
		tasks[i] = func(ctx context.Context) error {
			return q.enricher.Enrich(ctx, denom)
		}
	}

	failed := 0
	for i, err := range scheduler.RunAll(ctx, tasks, q.ceiling) {
		if err == nil {
			continue
		}
		failed++
		q.seen.Delete(batch[i])
		q.logger.Warn("token metadata enrichment failed", zap.String("denom", batch[i]), zap.Error(err))
	}
	return failed
}
