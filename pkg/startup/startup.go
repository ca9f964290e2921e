// Package startup starts the service's dependencies in order with retries and stops them in
// reverse order.
package startup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type Dependency interface {
	GetName() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Hook adapts a pair of functions to Dependency. Either function may be nil.
type Hook struct {
	Name    string
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

func (h Hook) GetName() string { return h.Name }

func (h Hook) Start(ctx context.Context) error {
	if h.StartFn == nil {
		return nil
	}
	return h.StartFn(ctx)
}

func (h Hook) Stop(ctx context.Context) error {
	if h.StopFn == nil {
		return nil
	}
	return h.StopFn(ctx)
}

type Status int

const (
	StatusPending Status = iota
	StatusStarted
	StatusStopped
	StatusFailed
)

type Startup struct {
	dependencies []Dependency
	statuses     map[string]Status
	logger       ectologger.Logger
	maxAttempts  int
	// backoffUnit scales the fibonacci wait between attempts.
	backoffUnit time.Duration
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Startup{
		statuses:    make(map[string]Status),
		logger:      logger,
		maxAttempts: maxAttempts,
		backoffUnit: time.Second,
	}
}

// Add registers dependencies in start order.
func (s *Startup) Add(dependencies ...Dependency) {
	s.dependencies = append(s.dependencies, dependencies...)
}

func (s *Startup) Status(name string) Status {
	return s.statuses[name]
}

// Start starts every dependency that is not running yet, in registration order. A failed
// attempt is retried after a fibonacci backoff, resuming from the failed dependency.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error
	a, b := 1, 1

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithContext(ctx).WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = s.startAll(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * s.backoffUnit
		s.logger.WithContext(ctx).Infof("Retrying in %s (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startAll(ctx context.Context) error {
	for _, dep := range s.dependencies {
		name := dep.GetName()
		if s.statuses[name] == StatusStarted {
			continue
		}

		s.logger.WithContext(ctx).WithField("dependency", name).Infof("Starting dependency '%s'", name)
		if err := dep.Start(ctx); err != nil {
			s.statuses[name] = StatusFailed
			s.logger.WithContext(ctx).WithError(err).WithField("dependency", name).Errorf("Failed to start dependency '%s'", name)
			return fmt.Errorf("%s: %w", name, err)
		}
		s.statuses[name] = StatusStarted
	}
	return nil
}

// Stop stops started dependencies in reverse registration order. Every dependency gets its
// turn even when an earlier one fails; the failures are joined.
func (s *Startup) Stop(ctx context.Context) error {
	var errs []error
	for i := len(s.dependencies) - 1; i >= 0; i-- {
		dep := s.dependencies[i]
		name := dep.GetName()
		if s.statuses[name] != StatusStarted {
			continue
		}

		s.logger.WithContext(ctx).WithField("dependency", name).Infof("Stopping dependency '%s'", name)
		if err := dep.Stop(ctx); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("dependency", name).Errorf("Failed to stop dependency '%s'", name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		s.statuses[name] = StatusStopped
	}
	return errors.Join(errs...)
}
