// Package directory resolves pair addresses to pools with their token exponents.
package directory

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ammScope/internal/model"
	"ammScope/internal/scheduler"
	"ammScope/internal/storage"
)

// MaxPrefetchCeiling caps prefetch concurrency.
const MaxPrefetchCeiling = 24

// SharedCache is an optional cross-process layer consulted before storage.
type SharedCache interface {
	GetPool(ctx context.Context, address string) (*model.Pool, error)
	SetPool(ctx context.Context, pool model.Pool) error
}

// Config holds directory settings.
type Config struct {
	NativeDenom     string
	PrefetchCeiling int
}

// Directory memoizes pool lookups for the life of the process. Misses are not
// cached, so a pool created later is found on the next lookup.
//
// Token exponents are cached apart from pools and applied on every read.
// Denoms without a token row resolve to model.DefaultExponent and stay listed
// until RefreshTokens finds their row.
type Directory struct {
	cfg    Config
	store  storage.PoolReader
	shared SharedCache
	logger *zap.Logger

	cache      *xsync.Map[string, model.Pool]
	tokens     *xsync.Map[string, int32]
	unresolved *xsync.Map[string, struct{}]
	group      singleflight.Group
}

func New(cfg Config, store storage.PoolReader, shared SharedCache, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PrefetchCeiling <= 0 || cfg.PrefetchCeiling > MaxPrefetchCeiling {
		cfg.PrefetchCeiling = MaxPrefetchCeiling
	}
	return &Directory{
		cfg:    cfg,
		store:  store,
		shared: shared,
		logger: logger,
		cache:      xsync.NewMap[string, model.Pool](),
		tokens:     xsync.NewMap[string, int32](),
		unresolved: xsync.NewMap[string, struct{}](),
	}
}

// Cached returns the pool only if it is already in the local cache.
func (d *Directory) Cached(address string) (*model.Pool, bool) {
	pool, ok := d.cache.Load(address)
	if !ok {
		return nil, false
	}
	pool = d.applyExponents(pool)
	return &pool, true
}

// Lookup returns the pool for address, or nil if it is unknown.
func (d *Directory) Lookup(ctx context.Context, address string) (*model.Pool, error) {
	if address == "" {
		return nil, nil
	}
	if pool, ok := d.Cached(address); ok {
		return pool, nil
	}

	v, err, _ := d.group.Do(address, func() (any, error) {
		return d.load(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	pool, _ := v.(*model.Pool)
	if pool == nil {
		return nil, nil
	}
	cp := *pool
	return &cp, nil
}

// Remember caches a freshly written pool so later lookups skip storage.
func (d *Directory) Remember(ctx context.Context, pool model.Pool) error {
	resolved, err := d.resolve(ctx, pool)
	if err != nil {
		return err
	}
	d.cache.Store(resolved.Address, resolved)
	d.publish(ctx, resolved)
	return nil
}

// Prefetch loads every uncached address with bounded concurrency and returns
// how many pools were found. Failures are logged and leave entries unpopulated.
func (d *Directory) Prefetch(ctx context.Context, addresses []string) int {
	seen := make(map[string]struct{}, len(addresses))
	var missing []string
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if _, ok := d.cache.Load(addr); !ok {
			missing = append(missing, addr)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	tasks := make([]scheduler.Task, len(missing))
	for i, addr := range missing {
		tasks[i] = func(ctx context.Context) error {
			_, err := d.Lookup(ctx, addr)
			return err
		}
	}

	errs := scheduler.RunAll(ctx, tasks, d.cfg.PrefetchCeiling)
	found := 0
	for i, err := range errs {
		if err != nil {
			d.logger.Warn("pool prefetch failed", zap.String("pool", missing[i]), zap.Error(err))
			continue
		}
		if _, ok := d.cache.Load(missing[i]); ok {
			found++
		}
	}
	return found
}

// Size is the number of cached pools.
func (d *Directory) Size() int {
	return d.cache.Size()
}

// RefreshTokens reloads denoms that resolved to the default exponent and
// returns how many now have a token row. Cached pools pick up the new
// exponents on their next read.
func (d *Directory) RefreshTokens(ctx context.Context) (int, error) {
	var denoms []string
	d.unresolved.Range(func(denom string, _ struct{}) bool {
		denoms = append(denoms, denom)
		return true
	})
	if len(denoms) == 0 {
		return 0, nil
	}
	found, err := d.loadTokens(ctx, denoms)
	if err != nil {
		return 0, fmt.Errorf("refresh tokens: %w", err)
	}
	return found, nil
}

func (d *Directory) load(ctx context.Context, address string) (*model.Pool, error) {
	if pool, ok := d.Cached(address); ok {
		return pool, nil
	}
	if d.shared != nil {
		pool, err := d.shared.GetPool(ctx, address)
		if err != nil {
			d.logger.Debug("shared pool cache read failed", zap.String("pool", address), zap.Error(err))
		} else if pool != nil {
			resolved, err := d.resolve(ctx, *pool)
			if err != nil {
				return nil, err
			}
			d.cache.Store(address, resolved)
			return &resolved, nil
		}
	}

	stored, err := d.store.PoolByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("load pool %s: %w", address, err)
	}
	if stored == nil {
		return nil, nil
	}

	resolved, err := d.resolve(ctx, *stored)
	if err != nil {
		return nil, err
	}
	d.cache.Store(address, resolved)
	d.publish(ctx, resolved)
	return &resolved, nil
}

func (d *Directory) resolve(ctx context.Context, pool model.Pool) (model.Pool, error) {
	if _, err := d.loadTokens(ctx, []string{pool.BaseDenom, pool.QuoteDenom}); err != nil {
		return model.Pool{}, fmt.Errorf("load tokens for pool %s: %w", pool.Address, err)
	}
	return d.applyExponents(pool), nil
}

// loadTokens reads exponents for denoms not yet cached and returns how many
// were found. Denoms still missing are kept for RefreshTokens.
func (d *Directory) loadTokens(ctx context.Context, denoms []string) (int, error) {
	var missing []string
	for _, denom := range denoms {
		if denom == "" {
			continue
		}
		if _, ok := d.tokens.Load(denom); !ok {
			missing = append(missing, denom)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	tokens, err := d.store.Tokens(ctx, missing)
	if err != nil {
		return 0, err
	}
	found := 0
	for _, denom := range missing {
		t, ok := tokens[denom]
		if !ok {
			d.unresolved.Store(denom, struct{}{})
			continue
		}
		d.tokens.Store(denom, t.Exponent)
		d.unresolved.Delete(denom)
		found++
	}
	return found, nil
}

// applyExponents prefers cached token rows, then exponents the pool already
// carries (for example from the shared cache), then the default.
func (d *Directory) applyExponents(pool model.Pool) model.Pool {
	pool.BaseExponent = d.exponent(pool.BaseDenom, pool.BaseExponent)
	pool.QuoteExponent = d.exponent(pool.QuoteDenom, pool.QuoteExponent)
	pool.QuoteIsNative = d.cfg.NativeDenom != "" && pool.QuoteDenom == d.cfg.NativeDenom
	return pool
}

func (d *Directory) publish(ctx context.Context, pool model.Pool) {
	if d.shared == nil {
		return
	}
	if err := d.shared.SetPool(ctx, pool); err != nil {
		d.logger.Debug("shared pool cache write failed", zap.String("pool", pool.Address), zap.Error(err))
	}
}

func (d *Directory) exponent(denom string, carried int32) int32 {
	if exp, ok := d.tokens.Load(denom); ok {
		return exp
	}
	if carried > 0 {
		return carried
	}
	return model.DefaultExponent
}
