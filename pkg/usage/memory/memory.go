// Package memory provides an in-memory usage store for lightweight
// deployments. Records are lost on restart; when the size limit is
// reached the oldest record is evicted.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/polygate-dev/polygate/pkg/usage"
)

const defaultListLimit = 100

// Store is an in-memory usage ledger with FIFO eviction.
type Store struct {
	mu      sync.RWMutex
	records *list.List // front = newest
	maxSize int        // 0 = unlimited
}

var _ usage.Store = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0 the store grows without
// limit; otherwise the oldest record is evicted once the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		records: list.New(),
		maxSize: maxSize,
	}
}

// Save records one finished completion.
func (s *Store) Save(_ context.Context, rec usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && s.records.Len() >= s.maxSize {
		if oldest := s.records.Back(); oldest != nil {
			s.records.Remove(oldest)
		}
	}
	s.records.PushFront(rec)
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(_ context.Context, limit int) ([]usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	out := make([]usage.Record, 0, min(limit, s.records.Len()))
	for e := s.records.Front(); e != nil && len(out) < limit; e = e.Next() {
		out = append(out, e.Value.(usage.Record))
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}
