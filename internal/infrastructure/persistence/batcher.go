package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"jobboard-backend/internal/clock"
	apperrors "jobboard-backend/internal/errors"
)

// Priority orders items within a table's pending batch. High-priority items
// additionally force an immediate flush so interactive reads are never stuck
// behind background prefetches.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// String returns the config/log representation of a priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// QueryResult is the raw outcome of one backend query: the response body
// plus the exact row count when the query requested one.
type QueryResult struct {
	Data  []byte
	Count *int64
}

// QueryFunc executes one query on a pooled connection.
type QueryFunc func(ctx context.Context, conn Connection) (QueryResult, error)

// Outcome is delivered exactly once on the channel returned by Enqueue.
type Outcome struct {
	Result QueryResult
	Err    error
}

// BatcherConfig configures batch coalescing.
type BatcherConfig struct {
	// BatchSize triggers an immediate flush when a table's pending list
	// reaches it.
	BatchSize int
	// BatchTimeout is the debounce window after the first pending item.
	BatchTimeout time.Duration
	// YieldDelay spaces successive flushes of a backlogged table so other
	// tables get pool access in between.
	YieldDelay time.Duration
	// AcquireTimeout bounds the pool acquire performed by a flush.
	AcquireTimeout time.Duration
}

// BatcherStats is a point-in-time snapshot for monitoring hooks.
type BatcherStats struct {
	Pending     int            `json:"pending"`
	PendingBy   map[string]int `json:"pendingByTable"`
	Flushes     int64          `json:"flushes"`
	Processed   int64          `json:"processed"`
	Failures    int64          `json:"failures"`
	HighFlushes int64          `json:"highPriorityFlushes"`
}

// batchItem is one caller's query plus its completion handle.
type batchItem struct {
	ctx      context.Context
	fn       QueryFunc
	priority Priority
	seq      uint64
	done     chan Outcome
}

// tableQueue holds the pending batch for one logical table.
type tableQueue struct {
	items      []*batchItem
	timer      clock.Timer
	timerGen   int
	processing bool
}

// Batcher coalesces small queries against the same logical table into
// size- or time-triggered batches executed on one pooled connection.
// Enqueue never blocks the caller; each item resolves independently when
// its batch runs.
type Batcher struct {
	mu     sync.Mutex
	tables map[string]*tableQueue
	seq    uint64
	closed bool
	quit   chan struct{}

	flushes     int64
	processed   int64
	failures    int64
	highFlushes int64

	pool   *Pool
	cfg    BatcherConfig
	clock  clock.Clock
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewBatcher creates a batcher on top of the given pool.
func NewBatcher(pool *Pool, cfg BatcherConfig, clk clock.Clock, logger *zap.Logger) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.YieldDelay <= 0 {
		cfg.YieldDelay = 10 * time.Millisecond
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
	return &Batcher{
		tables: make(map[string]*tableQueue),
		quit:   make(chan struct{}),
		pool:   pool,
		cfg:    cfg,
		clock:  clk,
		logger: logger,
	}
}

// Enqueue adds a query to the table's pending batch and returns its
// completion channel. Items are kept ordered by priority, preserving
// arrival order within the same priority.
//
// A high-priority item flushes synchronously, so the batch it rides in
// contains exactly the items pending at that instant; anything enqueued
// afterwards, whatever its priority, lands in the next batch. Priority
// therefore orders items within one batch, never across the flush
// boundary.
func (b *Batcher) Enqueue(ctx context.Context, table string, fn QueryFunc, priority Priority) <-chan Outcome {
	done := make(chan Outcome, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		done <- Outcome{Err: apperrors.Internal(apperrors.CodeBatcherClosed, "batcher is closed").Build()}
		return done
	}

	b.seq++
	item := &batchItem{ctx: ctx, fn: fn, priority: priority, seq: b.seq, done: done}

	q := b.tables[table]
	if q == nil {
		q = &tableQueue{}
		b.tables[table] = q
	}
	q.items = append(q.items, item)
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].priority < q.items[j].priority
	})

	switch {
	case priority == PriorityHigh:
		b.highFlushes++
		b.startFlushLocked(table, q)
	case len(q.items) >= b.cfg.BatchSize:
		b.startFlushLocked(table, q)
	case q.timer == nil && !q.processing:
		b.startDebounceLocked(table, q)
	}
	b.mu.Unlock()

	return done
}

// startDebounceLocked arms the table's debounce timer. Caller holds b.mu.
func (b *Batcher) startDebounceLocked(table string, q *tableQueue) {
	q.timer = b.clock.NewTimer(b.cfg.BatchTimeout)
	q.timerGen++
	gen := q.timerGen
	timer := q.timer

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-timer.C():
		case <-b.quit:
			return
		}

		b.mu.Lock()
		// A size/priority flush may have cancelled this timer already.
		if q.timerGen != gen {
			b.mu.Unlock()
			return
		}
		q.timer = nil
		b.startFlushLocked(table, q)
		b.mu.Unlock()
	}()
}

// startFlushLocked takes up to BatchSize items off the front of the queue
// and dispatches them. Caller holds b.mu. The per-table processing flag
// guarantees a table is never flushed twice concurrently.
func (b *Batcher) startFlushLocked(table string, q *tableQueue) {
	if q.processing || len(q.items) == 0 {
		return
	}
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
		q.timerGen++
	}

	take := b.cfg.BatchSize
	if take > len(q.items) {
		take = len(q.items)
	}
	batch := make([]*batchItem, take)
	copy(batch, q.items[:take])
	q.items = q.items[take:]
	q.processing = true
	b.flushes++

	b.wg.Add(1)
	go b.runBatch(table, q, batch)
}

// runBatch acquires one pooled connection, fans the batch out, and resolves
// each item from its own outcome. One failing query never fails its batch
// siblings.
func (b *Batcher) runBatch(table string, q *tableQueue, batch []*batchItem) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.AcquireTimeout)
	conn, err := b.pool.Acquire(ctx)
	cancel()
	if err != nil {
		b.logger.Warn("batch flush failed to acquire connection",
			zap.String("table", table),
			zap.Error(err),
		)
		for _, item := range batch {
			item.done <- Outcome{Err: err}
		}
		b.mu.Lock()
		b.failures += int64(len(batch))
		b.finishLocked(table, q)
		b.mu.Unlock()
		return
	}

	var wg sync.WaitGroup
	var failed int64
	var mu sync.Mutex
	for _, item := range batch {
		wg.Add(1)
		go func(it *batchItem) {
			defer wg.Done()
			res, err := it.fn(it.ctx, conn)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			it.done <- Outcome{Result: res, Err: err}
		}(item)
	}
	wg.Wait()
	b.pool.Release(conn)

	b.mu.Lock()
	b.processed += int64(len(batch))
	b.failures += failed
	b.finishLocked(table, q)
	b.mu.Unlock()

	b.logger.Debug("batch flushed",
		zap.String("table", table),
		zap.Int("items", len(batch)),
		zap.Int64("failed", failed),
	)
}

// finishLocked clears the processing flag and, if a backlog remains,
// schedules the next flush after a short yield so other tables get a turn
// at the pool. Caller holds b.mu.
func (b *Batcher) finishLocked(table string, q *tableQueue) {
	q.processing = false
	if len(q.items) == 0 {
		return
	}
	if b.closed {
		// Shutdown drains the backlog without yielding.
		b.startFlushLocked(table, q)
		return
	}

	timer := b.clock.NewTimer(b.cfg.YieldDelay)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-timer.C():
		case <-b.quit:
			// Drain on shutdown instead of dropping the backlog.
		}
		b.mu.Lock()
		b.startFlushLocked(table, q)
		b.mu.Unlock()
	}()
}

// Stats returns a snapshot of batcher activity.
func (b *Batcher) Stats() BatcherStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	byTable := make(map[string]int, len(b.tables))
	pending := 0
	for table, q := range b.tables {
		if len(q.items) > 0 {
			byTable[table] = len(q.items)
			pending += len(q.items)
		}
	}
	return BatcherStats{
		Pending:     pending,
		PendingBy:   byTable,
		Flushes:     b.flushes,
		Processed:   b.processed,
		Failures:    b.failures,
		HighFlushes: b.highFlushes,
	}
}

// Close flushes every pending batch and waits for in-flight work. New
// enqueues fail immediately after Close begins.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.quit)
	for table, q := range b.tables {
		b.startFlushLocked(table, q)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("batcher closed")
}
