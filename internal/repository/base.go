package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobboard-backend/internal/config"
	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
)

// Deps bundles the shared infrastructure every repository is constructed
// with. Instances are created once at startup and injected; repositories
// hold no entity data themselves.
type Deps struct {
	Pool    *persistence.Pool
	Batcher *persistence.Batcher
	Cache   *cache.QueryCache
	TTL     config.CacheConfig
	Logger  *zap.Logger
}

// baseRepository is the stateless façade bound to one logical table. It
// owns the read-through-cache and write-then-invalidate plumbing; entity
// repositories layer typed operations on top.
type baseRepository struct {
	table   string
	pool    *persistence.Pool
	batcher *persistence.Batcher
	cache   *cache.QueryCache
	ttl     config.CacheConfig
	logger  *zap.Logger
}

func newBaseRepository(table string, deps Deps) baseRepository {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseRepository{
		table:   table,
		pool:    deps.Pool,
		batcher: deps.Batcher,
		cache:   deps.Cache,
		ttl:     deps.TTL,
		logger:  logger.With(zap.String("table", table)),
	}
}

// cachedBatchedRead is the standard read path: cache hit returns
// immediately, a miss enqueues the query on the batcher and caches the
// result under key with the given TTL.
func (r *baseRepository) cachedBatchedRead(ctx context.Context, key string, ttl time.Duration, priority persistence.Priority, fn persistence.QueryFunc) (cache.Entry, error) {
	if entry, ok := r.cache.Get(key); ok {
		return entry, nil
	}

	outcome := <-r.batcher.Enqueue(ctx, r.table, fn, priority)
	if outcome.Err != nil {
		return cache.Entry{}, outcome.Err
	}

	entry := cache.Entry{Data: outcome.Result.Data, Count: outcome.Result.Count}
	r.cache.Set(key, entry, ttl)
	return entry, nil
}

// cachedDirectRead is the same read path without batching, for queries
// that should not share a flush cycle (e.g. the duplicate check inside a
// submission).
func (r *baseRepository) cachedDirectRead(ctx context.Context, key string, ttl time.Duration, fn persistence.QueryFunc) (cache.Entry, error) {
	if entry, ok := r.cache.Get(key); ok {
		return entry, nil
	}

	res, err := r.direct(ctx, fn)
	if err != nil {
		return cache.Entry{}, err
	}

	entry := cache.Entry{Data: res.Data, Count: res.Count}
	r.cache.Set(key, entry, ttl)
	return entry, nil
}

// direct runs fn on a pooled connection without touching the cache.
func (r *baseRepository) direct(ctx context.Context, fn persistence.QueryFunc) (persistence.QueryResult, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return persistence.QueryResult{}, err
	}
	defer r.pool.Release(conn)
	return fn(ctx, conn)
}

// write executes a mutation directly (never batched, never cached) and
// invalidates every cached query for this table.
func (r *baseRepository) write(ctx context.Context, fn persistence.QueryFunc) (persistence.QueryResult, error) {
	res, err := r.direct(ctx, fn)
	if err != nil {
		return persistence.QueryResult{}, err
	}
	r.invalidate()
	return res, nil
}

// invalidate clears all cached queries for this repository's table.
func (r *baseRepository) invalidate() {
	removed := r.cache.DeletePattern(cache.TablePattern(r.table))
	r.logger.Debug("cache invalidated after write", zap.Int("removed", removed))
}
