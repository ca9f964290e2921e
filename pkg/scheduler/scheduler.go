// Package scheduler runs the periodic importance flip over notifications.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/metrics"
	"github.com/Ramsey-B/bellflower/pkg/redis"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// Scheduler errors
var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

// Scheduler defaults. LockKey is the Redis lease every replica competes for.
const (
	DefaultInterval = 60 * time.Second
	DefaultLockTTL  = 30 * time.Second
	LockKey         = "importance-flip"
)

// ImportanceStore flips is_important on every notification whose flip time is at or before now.
type ImportanceStore interface {
	FlipExpiredImportance(ctx context.Context, now time.Time) (int64, error)
}

// Locker is satisfied by *redis.Locker. A nil Locker runs every tick locally.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Config holds configuration for the scheduler
type Config struct {
	Interval time.Duration
	LockTTL  time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, LockTTL: DefaultLockTTL}
}

// Scheduler flips notification importance once its change time passes
type Scheduler struct {
	store  ImportanceStore
	locker Locker
	config Config
	logger ectologger.Logger
	now    func() time.Time

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewScheduler creates a new scheduler. A nil locker runs every tick unguarded.
func NewScheduler(store ImportanceStore, locker Locker, config Config, logger ectologger.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &Scheduler{
		store:  store,
		locker: locker,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Start runs one flip immediately and then one per interval until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting importance scheduler: interval=%s", s.config.Interval)

	go s.loop(context.WithoutCancel(ctx), s.stopCh, s.stoppedC)
	return nil
}

// Stop waits for an in-flight tick to finish, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, stoppedC := s.stopCh, s.stoppedC
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-stoppedC:
		s.logger.WithContext(ctx).Info("Importance scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Importance scheduler shutdown timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, redis.ErrLockNotAcquired) {
		s.logger.WithContext(ctx).WithError(err).Error("Importance flip failed")
	}
}

// RunOnce performs a single flip. A failure leaves the rows untouched for the next tick.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunOnce")
	defer span.End()

	var flipped int64
	run := func(ctx context.Context) error {
		n, err := s.store.FlipExpiredImportance(ctx, s.now().UTC())
		flipped = n
		return err
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, LockKey, s.config.LockTTL, run)
	} else {
		err = run(ctx)
	}

	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		metrics.RecordSchedulerRun("skipped", 0)
		s.logger.WithContext(ctx).Debug("Importance flip held by another instance")
	case err != nil:
		tracing.RecordError(span, err)
		metrics.RecordSchedulerRun("error", 0)
	default:
		metrics.RecordSchedulerRun("ok", flipped)
		if flipped > 0 {
			s.logger.WithContext(ctx).Infof("Flipped importance on %d notifications", flipped)
		}
	}
	return flipped, err
}
