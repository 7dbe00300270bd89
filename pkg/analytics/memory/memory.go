// Package memory provides an in-memory analytics.Store for testing and
// lightweight deployments. Events are kept in a bounded ring and lost
// when the process restarts.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/trygate-dev/trygate/pkg/analytics"
)

// Store is an in-memory event store with bounded retention.
type Store struct {
	mu      sync.RWMutex
	events  *list.List // front = newest
	byID    map[string]struct{}
	maxSize int // 0 = unlimited
}

// Ensure Store implements analytics.Store at compile time.
var _ analytics.Store = (*Store)(nil)

// New creates an in-memory store. If maxSize > 0 the oldest event is
// dropped when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		events:  list.New(),
		byID:    make(map[string]struct{}),
		maxSize: maxSize,
	}
}

// RecordEvent stores an event, evicting the oldest at capacity.
func (s *Store) RecordEvent(_ context.Context, ev *analytics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[ev.ID]; exists {
		return analytics.ErrConflict
	}

	if s.maxSize > 0 && s.events.Len() >= s.maxSize {
		oldest := s.events.Back()
		if oldest != nil {
			delete(s.byID, oldest.Value.(*analytics.Event).ID)
			s.events.Remove(oldest)
		}
	}

	// Copy so callers cannot mutate stored state.
	stored := *ev
	s.events.PushFront(&stored)
	s.byID[ev.ID] = struct{}{}

	return nil
}

// ListEvents returns up to limit events, newest first. limit <= 0 returns
// everything retained.
func (s *Store) ListEvents(_ context.Context, limit int) ([]*analytics.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.events.Len()
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*analytics.Event, 0, n)
	for e := s.events.Front(); e != nil && len(out) < n; e = e.Next() {
		ev := *e.Value.(*analytics.Event)
		out = append(out, &ev)
	}

	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}
