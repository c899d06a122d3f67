package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "jobboard-backend/internal/errors"
)

func newTestBatcher(t *testing.T, cfg BatcherConfig) (*Batcher, *Pool) {
	t.Helper()
	pool := newTestPool(t, 1, 2, time.Second)
	b := NewBatcher(pool, cfg, nil, nil)
	t.Cleanup(func() {
		b.Close()
		pool.CloseAll()
	})
	return b, pool
}

func okQuery(data string) QueryFunc {
	return func(ctx context.Context, conn Connection) (QueryResult, error) {
		return QueryResult{Data: []byte(data)}, nil
	}
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("batch item never resolved")
		return Outcome{}
	}
}

func TestEnqueuePriorityOrdering(t *testing.T) {
	// Debounce far in the future so nothing flushes while we look at the
	// pending queue.
	b, _ := newTestBatcher(t, BatcherConfig{BatchSize: 10, BatchTimeout: time.Hour})

	b.Enqueue(context.Background(), "applications", okQuery("low-1"), PriorityLow)
	b.Enqueue(context.Background(), "applications", okQuery("low-2"), PriorityLow)
	b.Enqueue(context.Background(), "applications", okQuery("medium-1"), PriorityMedium)
	b.Enqueue(context.Background(), "applications", okQuery("medium-2"), PriorityMedium)

	b.mu.Lock()
	q := b.tables["applications"]
	got := make([]Priority, len(q.items))
	seqs := make([]uint64, len(q.items))
	for i, item := range q.items {
		got[i] = item.priority
		seqs[i] = item.seq
	}
	b.mu.Unlock()

	want := []Priority{PriorityMedium, PriorityMedium, PriorityLow, PriorityLow}
	if len(got) != len(want) {
		t.Fatalf("pending items = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("items[%d].priority = %s, want %s", i, got[i], want[i])
		}
	}
	// Arrival order is preserved within a priority class.
	if seqs[0] > seqs[1] || seqs[2] > seqs[3] {
		t.Errorf("arrival order not preserved within priority: seqs = %v", seqs)
	}
}

// A high-priority enqueue flushes exactly the items pending at that
// instant; an item arriving after the flush began rides the next batch.
func TestHighPriorityFlushBoundsBatch(t *testing.T) {
	b, _ := newTestBatcher(t, BatcherConfig{BatchSize: 10, BatchTimeout: time.Hour})

	gate := make(chan struct{})
	gated := func(data string) QueryFunc {
		return func(ctx context.Context, conn Connection) (QueryResult, error) {
			<-gate
			return QueryResult{Data: []byte(data)}, nil
		}
	}

	chLow1 := b.Enqueue(context.Background(), "jobs", gated("low-1"), PriorityLow)
	chLow2 := b.Enqueue(context.Background(), "jobs", gated("low-2"), PriorityLow)
	chHigh := b.Enqueue(context.Background(), "jobs", gated("high"), PriorityHigh)

	// The first batch is now in flight, blocked on the gate. A medium
	// item arriving mid-flush must not join it.
	chMedium := b.Enqueue(context.Background(), "jobs", okQuery("medium"), PriorityMedium)
	close(gate)

	for i, ch := range []<-chan Outcome{chHigh, chLow1, chLow2, chMedium} {
		if out := waitOutcome(t, ch); out.Err != nil {
			t.Errorf("item %d error = %v", i, out.Err)
		}
	}

	stats := b.Stats()
	if stats.Flushes != 2 {
		t.Errorf("Stats().Flushes = %d, want 2 (mid-flush arrival lands in the next batch)", stats.Flushes)
	}
	if stats.HighFlushes != 1 {
		t.Errorf("Stats().HighFlushes = %d, want 1", stats.HighFlushes)
	}
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	b, _ := newTestBatcher(t, BatcherConfig{BatchSize: 2, BatchTimeout: time.Hour})

	ch1 := b.Enqueue(context.Background(), "jobs", okQuery("a"), PriorityLow)
	ch2 := b.Enqueue(context.Background(), "jobs", okQuery("b"), PriorityLow)

	if out := waitOutcome(t, ch1); out.Err != nil {
		t.Errorf("first item error = %v", out.Err)
	}
	if out := waitOutcome(t, ch2); out.Err != nil {
		t.Errorf("second item error = %v", out.Err)
	}

	stats := b.Stats()
	if stats.Processed != 2 {
		t.Errorf("Stats().Processed = %d, want 2", stats.Processed)
	}
	if stats.Pending != 0 {
		t.Errorf("Stats().Pending = %d, want 0", stats.Pending)
	}
}

func TestHighPriorityFlushesImmediately(t *testing.T) {
	b, _ := newTestBatcher(t, BatcherConfig{BatchSize: 10, BatchTimeout: time.Hour})

	ch := b.Enqueue(context.Background(), "jobs", okQuery("urgent"), PriorityHigh)
	out := waitOutcome(t, ch)
	if out.Err != nil {
		t.Fatalf("high priority item error = %v", out.Err)
	}
	if string(out.Result.Data) != "urgent" {
		t.Errorf("Result.Data = %q, want %q", out.Result.Data, "urgent")
	}
	if b.Stats().HighFlushes != 1 {
		t.Errorf("Stats().HighFlushes = %d, want 1", b.Stats().HighFlushes)
	}
}

func TestDebounceFlushesPartialBatch(t *testing.T) {
	b, _ := newTestBatcher(t, BatcherConfig{BatchSize: 10, BatchTimeout: 20 * time.Millisecond})

	ch := b.Enqueue(context.Background(), "jobs", okQuery("lonely"), PriorityLow)
	out := waitOutcome(t, ch)
	if out.Err != nil {
		t.Fatalf("debounced item error = %v", out.Err)
	}
	if string(out.Result.Data) != "lonely" {
		t.Errorf("Result.Data = %q, want %q", out.Result.Data, "lonely")
	}
}

func TestBatchFailureIsolation(t *testing.T) {
	b, _ := newTestBatcher(t, BatcherConfig{BatchSize: 2, BatchTimeout: time.Hour})

	boom := errors.New("relation does not exist")
	failing := func(ctx context.Context, conn Connection) (QueryResult, error) {
		return QueryResult{}, boom
	}

	chBad := b.Enqueue(context.Background(), "jobs", failing, PriorityLow)
	chGood := b.Enqueue(context.Background(), "jobs", okQuery("fine"), PriorityLow)

	if out := waitOutcome(t, chBad); !errors.Is(out.Err, boom) {
		t.Errorf("failing item error = %v, want %v", out.Err, boom)
	}
	out := waitOutcome(t, chGood)
	if out.Err != nil {
		t.Errorf("sibling item error = %v, want nil", out.Err)
	}
	if string(out.Result.Data) != "fine" {
		t.Errorf("sibling Result.Data = %q, want %q", out.Result.Data, "fine")
	}

	stats := b.Stats()
	if stats.Failures != 1 {
		t.Errorf("Stats().Failures = %d, want 1", stats.Failures)
	}
	if stats.Processed != 2 {
		t.Errorf("Stats().Processed = %d, want 2", stats.Processed)
	}
}

func TestAcquireFailureRejectsWholeBatch(t *testing.T) {
	pool := newTestPool(t, 1, 1, 50*time.Millisecond)
	defer pool.CloseAll()

	// Hold the only handle so the flush cannot acquire one.
	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer pool.Release(conn)

	b := NewBatcher(pool, BatcherConfig{
		BatchSize:      2,
		BatchTimeout:   time.Hour,
		AcquireTimeout: 50 * time.Millisecond,
	}, nil, nil)
	defer b.Close()

	ch1 := b.Enqueue(context.Background(), "jobs", okQuery("a"), PriorityLow)
	ch2 := b.Enqueue(context.Background(), "jobs", okQuery("b"), PriorityLow)

	for i, ch := range []<-chan Outcome{ch1, ch2} {
		if out := waitOutcome(t, ch); !apperrors.IsPoolTimeout(out.Err) {
			t.Errorf("item %d error = %v, want pool timeout", i, out.Err)
		}
	}
	if failures := b.Stats().Failures; failures != 2 {
		t.Errorf("Stats().Failures = %d, want 2", failures)
	}
}

func TestCloseDrainsBacklog(t *testing.T) {
	pool := newTestPool(t, 1, 2, time.Second)
	defer pool.CloseAll()
	b := NewBatcher(pool, BatcherConfig{BatchSize: 2, BatchTimeout: time.Hour}, nil, nil)

	// Five pending items across two tables; more than one batch per table.
	var chans []<-chan Outcome
	chans = append(chans, b.Enqueue(context.Background(), "jobs", okQuery("j1"), PriorityLow))
	chans = append(chans, b.Enqueue(context.Background(), "applications", okQuery("a1"), PriorityLow))
	chans = append(chans, b.Enqueue(context.Background(), "applications", okQuery("a2"), PriorityMedium))
	chans = append(chans, b.Enqueue(context.Background(), "applications", okQuery("a3"), PriorityLow))

	b.Close()

	for i, ch := range chans {
		select {
		case out := <-ch:
			if out.Err != nil {
				t.Errorf("item %d error after Close = %v", i, out.Err)
			}
		default:
			t.Errorf("item %d not resolved by Close", i)
		}
	}

	out := <-b.Enqueue(context.Background(), "jobs", okQuery("late"), PriorityHigh)
	if out.Err == nil {
		t.Error("Enqueue() after Close returned nil error")
	}
}
