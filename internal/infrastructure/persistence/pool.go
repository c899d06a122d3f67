// Package persistence implements the data-access resilience layer that sits
// between the repositories and the hosted backend: a bounded connection pool
// and a query batcher that coalesces small reads against the same table.
//
// Both components are process-local. Running multiple instances behind a load
// balancer gives each process its own independent pool and batcher state;
// sharing them across processes requires a shared backing store and is out of
// scope here.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"jobboard-backend/internal/clock"
	apperrors "jobboard-backend/internal/errors"
)

// Connection is a leasable backend client handle. The pool treats it as an
// opaque object; repositories use From to reach table-scoped query builders.
type Connection interface {
	From(table string) *postgrest.QueryBuilder
}

// ConnectionFactory creates a new backend handle on demand.
type ConnectionFactory func(ctx context.Context) (Connection, error)

// PoolConfig configures the connection pool. All values come from the
// application configuration, never hardcoded call sites.
type PoolConfig struct {
	MinConnections int
	MaxConnections int
	AcquireTimeout time.Duration
}

// PoolStats is a point-in-time snapshot for monitoring hooks.
type PoolStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Idle    int `json:"idle"`
	Waiting int `json:"waiting"`
}

// waitTicket is a pending acquire. The channel is buffered so a release can
// hand a connection to a waiter that is concurrently timing out; Acquire
// re-releases the handle in that case.
type waitTicket struct {
	ch chan Connection
}

// Pool is a bounded set of backend handles with acquire/release semantics
// and a FIFO waiting queue.
//
// Invariant: no handle is ever leased to two callers at once. A released
// handle is handed directly to the oldest waiter instead of being marked
// free, so there is no free/reacquire race window.
type Pool struct {
	mu       sync.Mutex
	conns    []Connection
	leased   map[Connection]bool
	waiters  []*waitTicket
	creating int
	closed   bool

	factory ConnectionFactory
	cfg     PoolConfig
	clock   clock.Clock
	logger  *zap.Logger
}

// NewPool creates a pool and pre-warms it to MinConnections so the first
// request does not pay connection setup latency.
func NewPool(ctx context.Context, factory ConnectionFactory, cfg PoolConfig, clk clock.Clock, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.MinConnections < 0 || cfg.MinConnections > cfg.MaxConnections {
		cfg.MinConnections = cfg.MaxConnections
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}

	p := &Pool{
		leased:  make(map[Connection]bool),
		factory: factory,
		cfg:     cfg,
		clock:   clk,
		logger:  logger,
	}

	for i := 0; i < cfg.MinConnections; i++ {
		conn, err := factory(ctx)
		if err != nil {
			return nil, apperrors.Connection("POOL_WARMUP_FAILED", "failed to pre-warm connection pool").
				WithCause(err).Build()
		}
		p.conns = append(p.conns, conn)
	}

	logger.Info("connection pool created",
		zap.Int("min", cfg.MinConnections),
		zap.Int("max", cfg.MaxConnections),
		zap.Duration("acquire_timeout", cfg.AcquireTimeout),
	)
	return p, nil
}

// Acquire leases a handle. The fast path is synchronous: an idle handle, or
// headroom to create one. Otherwise the caller joins the FIFO waiting queue
// and fails with a pool timeout if no handle is released in time. Caller
// cancellation via ctx removes the waiter the same way a timeout does.
func (p *Pool) Acquire(ctx context.Context) (Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, apperrors.Connection(apperrors.CodePoolClosed, "connection pool is closed").Build()
	}

	// Fast path: an existing handle nobody holds.
	for _, conn := range p.conns {
		if !p.leased[conn] {
			p.leased[conn] = true
			p.mu.Unlock()
			return conn, nil
		}
	}

	// Overflow path: grow up to MaxConnections. The reservation counter
	// keeps concurrent creators from overshooting while the factory runs
	// outside the lock.
	if len(p.conns)+p.creating < p.cfg.MaxConnections {
		p.creating++
		p.mu.Unlock()

		conn, err := p.factory(ctx)

		p.mu.Lock()
		p.creating--
		if err != nil {
			p.mu.Unlock()
			return nil, apperrors.Connection("POOL_CREATE_FAILED", "failed to create backend connection").
				WithCause(err).Build()
		}
		p.conns = append(p.conns, conn)
		p.leased[conn] = true
		total := len(p.conns)
		p.mu.Unlock()

		p.logger.Debug("pool grew", zap.Int("total", total))
		return conn, nil
	}

	// Saturated: wait FIFO for a release.
	ticket := &waitTicket{ch: make(chan Connection, 1)}
	p.waiters = append(p.waiters, ticket)
	p.mu.Unlock()

	timer := p.clock.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case conn, ok := <-ticket.ch:
		if !ok || conn == nil {
			return nil, apperrors.Connection(apperrors.CodePoolClosed, "connection pool closed while waiting").Build()
		}
		return conn, nil
	case <-timer.C():
		if conn, ok := p.abandonWait(ticket); ok {
			// A release won the race; keep the lease.
			return conn, nil
		}
		return nil, apperrors.Timeout(apperrors.CodePoolTimeout, "no connection became available").
			WithOperation("Acquire").
			WithDetails(p.cfg.AcquireTimeout.String()).
			Build()
	case <-ctx.Done():
		if conn, ok := p.abandonWait(ticket); ok {
			return conn, nil
		}
		return nil, apperrors.Timeout(apperrors.CodePoolTimeout, "acquire cancelled while waiting").
			WithOperation("Acquire").
			WithCause(ctx.Err()).
			Build()
	}
}

// abandonWait removes the ticket from the queue. If a release already
// fulfilled it, the delivered connection is returned so the caller can
// decide whether to keep or re-release it.
func (p *Pool) abandonWait(ticket *waitTicket) (Connection, bool) {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == ticket {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil, false
		}
	}
	p.mu.Unlock()

	// Ticket already dequeued: a release is delivering a handle into the
	// buffered channel, or CloseAll closed it. Either way the receive
	// terminates.
	conn, ok := <-ticket.ch
	return conn, ok && conn != nil
}

// Release returns a handle to the pool. If a waiter exists the handle is
// handed to the oldest one directly and stays leased. Releasing a handle
// that is not currently leased is a no-op.
func (p *Pool) Release(conn Connection) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if p.closed || !p.leased[conn] {
		p.mu.Unlock()
		return
	}

	if len(p.waiters) > 0 {
		ticket := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		// Handle remains leased; ownership transfers to the waiter.
		ticket.ch <- conn
		return
	}

	delete(p.leased, conn)
	p.mu.Unlock()
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Total:   len(p.conns),
		Active:  len(p.leased),
		Idle:    len(p.conns) - len(p.leased),
		Waiting: len(p.waiters),
	}
}

// CloseAll clears pool bookkeeping and rejects all pending waiters. The
// postgrest client has no close primitive, so underlying resources are
// released by process teardown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = nil
	p.conns = nil
	p.leased = make(map[Connection]bool)
	p.closed = true
	p.mu.Unlock()

	for _, w := range waiters {
		close(w.ch)
	}
	p.logger.Info("connection pool closed")
}
