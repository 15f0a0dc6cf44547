// Package limiter rate-limits registrations per address over a fixed time
// window. Only the registered controller may record registrations; the window
// resets lazily when its span has elapsed.
package limiter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"namehaus/internal/limiter/metrics"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/requestcontext"
)

// WindowStore keeps the per-address (count, windowStart) pairs.
type WindowStore interface {
	// Record atomically resets a stale window, then increments the count if
	// doing so stays within max. It returns the count after the call and
	// whether the registration was admitted. A rejected call leaves the
	// stored count unchanged.
	Record(ctx context.Context, addr domain.Address, now time.Time, window time.Duration, max int) (count int, allowed bool, err error)

	// Current returns the count inside the live window, zero when the window
	// has lapsed.
	Current(ctx context.Context, addr domain.Address, now time.Time, window time.Duration) (int, error)
}

// Service enforces the registration rate limit.
type Service struct {
	store WindowStore

	mu           sync.RWMutex
	controller   domain.Address
	maxPerWindow int
	timeWindow   time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store WindowStore, maxPerWindow int, timeWindow time.Duration, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("window store is required")
	}
	if maxPerWindow <= 0 {
		return nil, errors.New("max registrations per window must be positive")
	}
	if timeWindow <= 0 {
		return nil, errors.New("time window must be positive")
	}
	svc := &Service{
		store:        store,
		maxPerWindow: maxPerWindow,
		timeWindow:   timeWindow,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SetController registers the single address allowed to record
// registrations. Owner-only; the HTTP layer enforces the operator token.
func (s *Service) SetController(controller domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = controller
}

// SetMaxRegistrations updates the per-window cap. Takes effect immediately
// for subsequent calls.
func (s *Service) SetMaxRegistrations(max int) error {
	if max <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "max registrations must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxPerWindow = max
	return nil
}

// SetTimeWindow updates the window span. Takes effect immediately for
// subsequent windows.
func (s *Service) SetTimeWindow(window time.Duration) error {
	if window <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "time window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeWindow = window
	return nil
}

// RecordRegistration admits one registration for owner, called by the
// controller on each successful registration. Fails with CodeForbidden for
// any caller other than the registered controller and with CodeRateLimited
// once the window cap is reached; a rejected call does not consume quota.
func (s *Service) RecordRegistration(ctx context.Context, caller, owner domain.Address) error {
	s.mu.RLock()
	controller := s.controller
	max := s.maxPerWindow
	window := s.timeWindow
	s.mu.RUnlock()

	if caller != controller || controller.IsZero() {
		return dErrors.New(dErrors.CodeForbidden, "unauthorized limiter caller")
	}

	now := requestcontext.Now(ctx)
	count, allowed, err := s.store.Record(ctx, owner, now, window, max)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record registration")
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.IncrementLimitExceeded()
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "registration limit exceeded",
				"owner", owner.Hex(),
				"count", count,
				"max", max,
				"window_seconds", int(window.Seconds()),
			)
		}
		return dErrors.New(dErrors.CodeRateLimited, "registration limit exceeded for window")
	}
	if s.metrics != nil {
		s.metrics.IncrementRecorded()
	}
	return nil
}

// CurrentRegistrations is a pure read of an address's count inside the live
// window.
func (s *Service) CurrentRegistrations(ctx context.Context, addr domain.Address) (int, error) {
	s.mu.RLock()
	window := s.timeWindow
	s.mu.RUnlock()

	count, err := s.store.Current(ctx, addr, requestcontext.Now(ctx), window)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registration count")
	}
	return count, nil
}
