package commitment

import (
	"context"
	"sync"
	"time"

	"namehaus/pkg/platform/sentinel"
)

// Key is the 32-byte commitment hash. Declared locally so the store does not
// depend on the service package.
type Key [32]byte

// InMemoryCommitmentStore keeps commitment timestamps in a map guarded by a
// RWMutex. Commitments are one-shot: deleted on successful registration,
// otherwise left to age out.
type InMemoryCommitmentStore struct {
	mu          sync.RWMutex
	commitments map[Key]time.Time
}

func NewInMemoryCommitmentStore() *InMemoryCommitmentStore {
	return &InMemoryCommitmentStore{commitments: make(map[Key]time.Time)}
}

func (s *InMemoryCommitmentStore) Get(_ context.Context, key Key) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	committedAt, ok := s.commitments[key]
	if !ok {
		return time.Time{}, sentinel.ErrNotFound
	}
	return committedAt, nil
}

func (s *InMemoryCommitmentStore) Put(_ context.Context, key Key, committedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitments[key] = committedAt
	return nil
}

func (s *InMemoryCommitmentStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.commitments, key)
	return nil
}
