// Package push periodically publishes the latest minute bar of recently traded pools.
package push

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ammScope/internal/model"
	"ammScope/internal/notify"
	"ammScope/internal/storage"
)

// DefaultSpec runs every five seconds.
const DefaultSpec = "*/5 * * * * *"

// Loop collects pools touched by ingestion and pushes their latest bar on
// each cron tick. A pool is pushed once per tick no matter how many trades it saw.
type Loop struct {
	bars      storage.BarReader
	publisher notify.Publisher
	logger    *zap.Logger
	timeout   time.Duration

	touched *xsync.Map[string, model.Pool]
	cron    *cron.Cron
}

func New(bars storage.BarReader, publisher notify.Publisher, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		bars:      bars,
		publisher: publisher,
		logger:    logger,
		timeout:   25 * time.Second,
		touched:   xsync.NewMap[string, model.Pool](),
	}
}

// Touch marks a pool for the next tick.
func (l *Loop) Touch(pool model.Pool) {
	l.touched.Store(pool.Address, pool)
}

// Pending is the number of pools waiting for the next tick.
func (l *Loop) Pending() int {
	return l.touched.Size()
}

// Tick publishes the latest bar of every touched pool and returns how many were sent.
func (l *Loop) Tick(ctx context.Context) int {
	var pools []model.Pool
	l.touched.Range(func(addr string, pool model.Pool) bool {
		l.touched.Delete(addr)
		pools = append(pools, pool)
		return true
	})

	sent := 0
	for _, pool := range pools {
		bar, err := l.bars.LatestBar(ctx, pool.ID)
		if err != nil {
			l.logger.Warn("load latest bar failed", zap.String("pool", pool.Address), zap.Error(err))
			continue
		}
		if bar == nil {
			continue
		}
		err = l.publisher.Publish(ctx, notify.TopicCandles, notify.CandleUpdate{
			PoolID:  pool.ID,
			Address: pool.Address,
			Bar:     *bar,
		})
		if err != nil {
			l.logger.Warn("publish candle failed", zap.String("pool", pool.Address), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Start schedules Tick with a seconds-resolution cron spec.
func (l *Loop) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(l.logger))
	l.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	_, err := l.cron.AddFunc(spec, func() {
		tctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		if n := l.Tick(tctx); n > 0 {
			l.logger.Debug("pushed candles", zap.Int("pools", n))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule push loop %q: %w", spec, err)
	}
	l.cron.Start()
	l.logger.Info("push loop started", zap.String("spec", spec))
	return nil
}

// Stop waits for a running tick to finish.
func (l *Loop) Stop() {
	if l.cron != nil {
		<-l.cron.Stop().Done()
	}
}
