package window

import (
	"context"
	"sync"
	"time"

	"namehaus/pkg/domain"
)

// InMemoryWindowStore implements the fixed-window counters in memory.
type InMemoryWindowStore struct {
	mu      sync.Mutex
	windows map[domain.Address]*rateWindow
}

type rateWindow struct {
	count       int
	windowStart time.Time
}

func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{windows: make(map[domain.Address]*rateWindow)}
}

// Record resets a lapsed window, then admits the registration only while the
// incremented count stays within max. A rejected call leaves the count
// untouched so failures have no observable side effects.
func (s *InMemoryWindowStore) Record(_ context.Context, addr domain.Address, now time.Time, window time.Duration, max int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[addr]
	if w == nil {
		w = &rateWindow{windowStart: now}
		s.windows[addr] = w
	} else if now.Sub(w.windowStart) > window {
		w.count = 0
		w.windowStart = now
	}

	if w.count+1 > max {
		return w.count, false, nil
	}
	w.count++
	return w.count, true, nil
}

func (s *InMemoryWindowStore) Current(_ context.Context, addr domain.Address, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[addr]
	if w == nil || now.Sub(w.windowStart) > window {
		return 0, nil
	}
	return w.count, nil
}
