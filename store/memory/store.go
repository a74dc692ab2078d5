// Package memory provides an in-memory Store for tests and demos. All
// operations are atomic under a single mutex, so SaveStateApplied cannot be
// observed half-written.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/spendguard/account"
	spendstore "github.com/xraph/spendguard/store"
)

// compile-time interface check
var _ spendstore.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	state   *account.State
	applied map[string]time.Time
}

func New() *Store {
	return &Store{
		applied: make(map[string]time.Time),
	}
}

func (s *Store) LoadState(_ context.Context) (*account.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, nil
	}
	return s.state.Clone(), nil
}

func (s *Store) SaveState(_ context.Context, st *account.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st.Clone()
	return nil
}

func (s *Store) SaveStateApplied(_ context.Context, st *account.State, eventID string, appliedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st.Clone()
	s.applied[eventID] = appliedAt
	return nil
}

func (s *Store) IsApplied(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.applied[eventID]
	return ok, nil
}

func (s *Store) ListApplied(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.applied))
	for id := range s.applied {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) PurgeApplied(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, at := range s.applied {
		if at.Before(before) {
			delete(s.applied, id)
			count++
		}
	}
	return count, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
