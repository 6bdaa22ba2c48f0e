package syncqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for q.InFlight() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("queue did not drain, %d in flight", q.InFlight())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueue_DedupesInFlightUsers(t *testing.T) {
	release := make(chan struct{})
	q := New(Config{MaxConcurrent: 1}, DispatcherFunc(func(context.Context, uuid.UUID) error {
		<-release
		return nil
	}), zap.NewNop())
	defer q.Stop()

	user := uuid.New()
	if !q.Enqueue(user) {
		t.Fatal("first enqueue must be accepted")
	}
	if q.Enqueue(user) {
		t.Fatal("duplicate of an in-flight user must be rejected")
	}
	if q.InFlight() != 1 {
		t.Fatalf("in flight = %d", q.InFlight())
	}

	close(release)
	waitIdle(t, q)

	if !q.Enqueue(user) {
		t.Fatal("user must be accepted again once the previous job finished")
	}
}

func TestQueue_DrainLoopStopsAndRestarts(t *testing.T) {
	var processed atomic.Int32
	q := New(Config{MaxConcurrent: 4}, DispatcherFunc(func(context.Context, uuid.UUID) error {
		processed.Add(1)
		return nil
	}), zap.NewNop())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		q.Enqueue(uuid.New())
	}
	waitIdle(t, q)
	if processed.Load() != 3 {
		t.Fatalf("processed %d jobs, want 3", processed.Load())
	}

	// The drain loop has exited; a new job must wake it again.
	q.Enqueue(uuid.New())
	waitIdle(t, q)
	if processed.Load() != 4 {
		t.Fatalf("processed %d jobs, want 4", processed.Load())
	}
}

func TestQueue_BoundsConcurrency(t *testing.T) {
	var cur, max atomic.Int32
	var mu sync.Mutex
	q := New(Config{MaxConcurrent: 2}, DispatcherFunc(func(context.Context, uuid.UUID) error {
		n := cur.Add(1)
		mu.Lock()
		if n > max.Load() {
			max.Store(n)
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		return nil
	}), zap.NewNop())
	defer q.Stop()

	for i := 0; i < 6; i++ {
		q.Enqueue(uuid.New())
	}
	waitIdle(t, q)

	if max.Load() > 2 {
		t.Fatalf("observed %d concurrent dispatches, limit is 2", max.Load())
	}
}

func TestQueue_SpacesDispatches(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	q := New(Config{MaxConcurrent: 4, MinInterval: 50 * time.Millisecond},
		DispatcherFunc(func(context.Context, uuid.UUID) error {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return nil
		}), zap.NewNop())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		q.Enqueue(uuid.New())
	}
	waitIdle(t, q)

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 3 {
		t.Fatalf("dispatched %d jobs, want 3", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < 40*time.Millisecond {
			t.Fatalf("dispatches %d and %d only %s apart", i-1, i, gap)
		}
	}
}

func TestQueue_StopRejectsNewJobs(t *testing.T) {
	q := New(Config{MaxConcurrent: 1}, DispatcherFunc(func(context.Context, uuid.UUID) error {
		return nil
	}), zap.NewNop())

	q.Stop()
	if q.Enqueue(uuid.New()) {
		t.Fatal("stopped queue must reject jobs")
	}
	q.Stop() // idempotent
}
