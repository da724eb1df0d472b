package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/metrics"
	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

// Cycler runs one processing cycle at the given time.
type Cycler interface {
	Process(ctx context.Context, now time.Time) (models.CycleSummary, error)
}

// Scheduler runs a Cycler immediately and then every interval, one cycle
// at a time.
type Scheduler struct {
	proc     Cycler
	interval time.Duration
	lock     Locker
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type SchedulerOption func(*Scheduler)

// WithLocker replaces the default in-process lock, e.g. with a RedisLocker
// or a LocalLocker shared by several schedulers.
func WithLocker(l Locker) SchedulerOption {
	return func(s *Scheduler) { s.lock = l }
}

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(proc Cycler, interval time.Duration, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}

	s := &Scheduler{
		proc:     proc,
		interval: interval,
		lock:     NewLocalLocker(),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the scheduler in the background until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.Run(runCtx)
	}()

	return nil
}

// Stop prevents new cycles and waits for the in-flight one, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// stopped schedulers may be started again
	s.mu.Lock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
	s.mu.Unlock()
	return nil
}

// Run blocks until ctx is done. A cycle in progress when ctx is cancelled
// runs to completion.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("email queue scheduler started", zap.Duration("interval", s.interval))
	defer s.logger.Info("email queue scheduler stopped")

	if ctx.Err() != nil {
		return
	}
	_, _ = s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single cycle under the cycle lock and reports its outcome.
// Cancelling ctx does not interrupt the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (models.CycleSummary, error) {
	cycleID := uuid.NewString()
	log := s.logger.With(zap.String("cycle_id", cycleID))
	cycleCtx := context.WithoutCancel(ctx)

	unlock, ok, err := s.lock.TryLock(cycleCtx)
	if err != nil {
		log.Error("email queue cycle lock unavailable", zap.Error(err))
		metrics.Cycles.WithLabelValues(metrics.ResultFailed).Inc()
		return models.CycleSummary{CycleID: cycleID}, err
	}
	if !ok {
		log.Info("email queue cycle skipped, previous cycle still running")
		metrics.Cycles.WithLabelValues(metrics.ResultSkipped).Inc()
		return models.CycleSummary{CycleID: cycleID}, ErrCycleSkipped
	}
	defer unlock()

	now := s.now()
	log.Info("email queue cycle started", zap.Time("now", now))

	summary, err := s.proc.Process(cycleCtx, now)
	summary.CycleID = cycleID
	metrics.CycleDuration.Observe(summary.Duration.Seconds())

	if err != nil {
		log.Error("email queue cycle failed",
			zap.Int("attempted", summary.Attempted),
			zap.Int("sent", summary.Sent),
			zap.Error(err),
		)
		metrics.Cycles.WithLabelValues(metrics.ResultFailed).Inc()
		return summary, err
	}

	log.Info("email queue cycle completed",
		zap.Int("attempted", summary.Attempted),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("still_pending", summary.StillPending),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	)
	metrics.Cycles.WithLabelValues(metrics.ResultOK).Inc()

	return summary, nil
}
