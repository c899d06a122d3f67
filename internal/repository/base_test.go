package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/postgrest-go"

	"jobboard-backend/internal/config"
	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
)

// testConn satisfies persistence.Connection for plumbing tests whose query
// funcs never touch the backend.
type testConn struct{}

func (testConn) From(table string) *postgrest.QueryBuilder { return nil }

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	pool, err := persistence.NewPool(context.Background(),
		func(ctx context.Context) (persistence.Connection, error) { return testConn{}, nil },
		persistence.PoolConfig{MinConnections: 1, MaxConnections: 2, AcquireTimeout: time.Second},
		nil, nil)
	require.NoError(t, err)

	batcher := persistence.NewBatcher(pool, persistence.BatcherConfig{
		BatchSize:    5,
		BatchTimeout: 10 * time.Millisecond,
	}, nil, nil)

	t.Cleanup(func() {
		batcher.Close()
		pool.CloseAll()
	})

	return Deps{
		Pool:    pool,
		Batcher: batcher,
		Cache:   cache.NewQueryCache(100, nil, nil),
		TTL: config.CacheConfig{
			CountTTL:     30 * time.Second,
			ListTTL:      2 * time.Minute,
			PublicTTL:    5 * time.Minute,
			DuplicateTTL: 30 * time.Second,
		},
	}
}

func countingQuery(calls *int, data string) persistence.QueryFunc {
	return func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		*calls++
		return persistence.QueryResult{Data: []byte(data)}, nil
	}
}

func TestCachedBatchedReadMemoizes(t *testing.T) {
	deps := newTestDeps(t)
	base := newBaseRepository("jobs", deps)

	calls := 0
	key := cache.Key("jobs", "list", cache.Page{Limit: 20}, cache.Filter{}, nil)

	entry, err := base.cachedBatchedRead(context.Background(), key, time.Minute, persistence.PriorityHigh, countingQuery(&calls, `[]`))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(entry.Data))
	assert.Equal(t, 1, calls)

	_, err = base.cachedBatchedRead(context.Background(), key, time.Minute, persistence.PriorityHigh, countingQuery(&calls, `[]`))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second read with the same key must be served from cache")
}

func TestWriteInvalidatesTableReads(t *testing.T) {
	deps := newTestDeps(t)
	base := newBaseRepository("jobs", deps)

	calls := 0
	key := cache.Key("jobs", "list", cache.Page{Limit: 20}, cache.Filter{}, nil)

	_, err := base.cachedBatchedRead(context.Background(), key, time.Minute, persistence.PriorityHigh, countingQuery(&calls, `[]`))
	require.NoError(t, err)

	_, err = base.write(context.Background(), func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		return persistence.QueryResult{Data: []byte(`[{"id":"1"}]`)}, nil
	})
	require.NoError(t, err)

	_, err = base.cachedBatchedRead(context.Background(), key, time.Minute, persistence.PriorityHigh, countingQuery(&calls, `[]`))
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "read after write must go back to the backend")
}

func TestWriteDoesNotInvalidateOtherTables(t *testing.T) {
	deps := newTestDeps(t)
	jobs := newBaseRepository("jobs", deps)
	apps := newBaseRepository("applications", deps)

	calls := 0
	key := cache.Key("applications", "count", cache.Page{}, cache.Filter{}, nil)
	_, err := apps.cachedBatchedRead(context.Background(), key, time.Minute, persistence.PriorityLow, countingQuery(&calls, `7`))
	require.NoError(t, err)

	_, err = jobs.write(context.Background(), func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		return persistence.QueryResult{}, nil
	})
	require.NoError(t, err)

	_, err = apps.cachedBatchedRead(context.Background(), key, time.Minute, persistence.PriorityLow, countingQuery(&calls, `7`))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "a jobs write must not evict applications entries")
}

func TestWriteErrorKeepsCache(t *testing.T) {
	deps := newTestDeps(t)
	base := newBaseRepository("jobs", deps)

	calls := 0
	key := cache.Key("jobs", "get", cache.Page{}, cache.Filter{}, map[string]string{"id": "1"})
	_, err := base.cachedBatchedRead(context.Background(), key, time.Minute, persistence.PriorityHigh, countingQuery(&calls, `[]`))
	require.NoError(t, err)

	_, err = base.write(context.Background(), func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		return persistence.QueryResult{}, assert.AnError
	})
	require.Error(t, err)

	_, ok := deps.Cache.Get(key)
	assert.True(t, ok, "a failed write must not invalidate cached reads")
}
