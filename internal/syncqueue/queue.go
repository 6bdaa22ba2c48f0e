// Package syncqueue serializes third-party biometric sync jobs behind a rate
// limit so a burst of reminders cannot hammer an upstream provider.
package syncqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trannm/healthpulse/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher performs one third-party sync for a user
type Dispatcher interface {
	Sync(ctx context.Context, userID uuid.UUID) error
}

// DispatcherFunc adapts a function to the Dispatcher interface
type DispatcherFunc func(ctx context.Context, userID uuid.UUID) error

func (f DispatcherFunc) Sync(ctx context.Context, userID uuid.UUID) error { return f(ctx, userID) }

// Config tunes the queue
type Config struct {
	// MaxConcurrent bounds how many syncs run at once
	MaxConcurrent int
	// MinInterval is the minimum spacing between dispatch starts
	MinInterval time.Duration
}

// Queue is an in-memory, deduplicating job queue. A user already pending or
// in flight is not enqueued twice. The drain loop starts on the first job and
// exits when the queue empties; the next Enqueue restarts it.
type Queue struct {
	cfg      Config
	dispatch Dispatcher
	limiter  *rate.Limiter
	sem      chan struct{}
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	pending  []uuid.UUID
	inflight map[uuid.UUID]struct{}
	running  bool
	stopped  bool
}

func New(cfg Config, dispatch Dispatcher, log *zap.Logger) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:      cfg,
		dispatch: dispatch,
		limiter:  rate.NewLimiter(limit, 1),
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Enqueue adds a sync job unless the user is already pending or in flight.
// Returns whether the job was accepted.
func (q *Queue) Enqueue(userID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	if _, dup := q.inflight[userID]; dup {
		return false
	}
	q.inflight[userID] = struct{}{}
	q.pending = append(q.pending, userID)
	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.drain()
	}
	return true
}

// Pending reports jobs waiting for a dispatch slot
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight reports jobs pending or actively dispatching
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Stop refuses further jobs, cancels running dispatches and waits for the
// drain loop to exit. Idempotent.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	q.log.Info("🛑 Sync queue stopped")
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if q.stopped || len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		userID := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		// Spacing between dispatch starts, then a concurrency slot.
		if err := q.limiter.Wait(q.ctx); err != nil {
			q.finish(userID)
			continue // stopped; loop exits on the next pass
		}
		select {
		case q.sem <- struct{}{}:
		case <-q.ctx.Done():
			q.finish(userID)
			continue
		}

		q.wg.Add(1)
		go func(id uuid.UUID) {
			defer q.wg.Done()
			defer func() { <-q.sem }()
			defer q.finish(id)

			if err := q.dispatch.Sync(q.ctx, id); err != nil {
				metrics.SyncDispatches.WithLabelValues("error").Inc()
				q.log.Warn("⚠️ Sync dispatch failed", zap.String("user", id.String()), zap.Error(err))
				return
			}
			metrics.SyncDispatches.WithLabelValues("ok").Inc()
		}(userID)
	}
}

func (q *Queue) finish(userID uuid.UUID) {
	q.mu.Lock()
	delete(q.inflight, userID)
	q.mu.Unlock()
}
