package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ServiceConfig holds the cycle intervals
type ServiceConfig struct {
	PopulateInterval time.Duration
	WorkerInterval   time.Duration
}

// Service owns the engine lifecycle: it binds the populate and dispatch
// cycles to a tick source and tracks in-flight runs so Stop can drain them.
// Start and Stop are idempotent.
type Service struct {
	cfg       ServiceConfig
	ticks     TickSource
	populator *Populator
	worker    *Worker
	log       *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewService(cfg ServiceConfig, ticks TickSource, populator *Populator, worker *Worker, log *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		ticks:     ticks,
		populator: populator,
		worker:    worker,
		log:       log,
	}
}

// Start registers the periodic cycles and begins ticking. Both cycles also
// run once immediately so a restart catches up without waiting an interval.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.ticks.Every(s.cfg.PopulateInterval, func() {
		s.runCycle(ctx, "populate", s.populator.RunOnce)
	}); err != nil {
		cancel()
		return err
	}
	if err := s.ticks.Every(s.cfg.WorkerInterval, func() {
		s.runCycle(ctx, "dispatch", s.worker.RunOnce)
	}); err != nil {
		cancel()
		return err
	}

	s.ticks.Start()
	s.started = true
	s.log.Info("✅ Notification engine started",
		zap.Duration("populate_interval", s.cfg.PopulateInterval),
		zap.Duration("worker_interval", s.cfg.WorkerInterval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(ctx, "populate", s.populator.RunOnce)
		s.runCycle(ctx, "dispatch", s.worker.RunOnce)
	}()
	return nil
}

// Stop halts ticking and waits for any in-flight cycle to finish. The
// started flag is lowered under the mutex before the wait, so no cycle can
// join the wait group once the drain has begun.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.ticks.Stop()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("🛑 Notification engine stopped")
}

// runCycle gates entry on the started flag under the mutex; wg.Add only ever
// happens while the service is started, which Stop falsifies before waiting.
func (s *Service) runCycle(ctx context.Context, name string, fn func(context.Context) error) {
	s.mu.Lock()
	if !s.started || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("❌ Engine cycle failed", zap.String("cycle", name), zap.Error(err))
	}
}
