// Package history keeps a bounded, in-memory log of completed spins.
package history

import (
	"sync"

	"liminal/internal/types"
)

// DefaultCapacity is the number of records kept before the oldest is evicted.
const DefaultCapacity = 100

// Store is a fixed-size ring of SpinRecords. Eviction is FIFO.
type Store struct {
	mu    sync.RWMutex
	buf   []types.SpinRecord
	start int
	size  int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]types.SpinRecord, capacity)}
}

// Append adds a record, overwriting the oldest one once the store is full.
func (s *Store) Append(rec types.SpinRecord) {
	rec.Options = append([]string(nil), rec.Options...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size < len(s.buf) {
		s.buf[(s.start+s.size)%len(s.buf)] = rec
		s.size++
		return
	}
	s.buf[s.start] = rec
	s.start = (s.start + 1) % len(s.buf)
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(n int) []types.SpinRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || s.size == 0 {
		return []types.SpinRecord{}
	}
	if n > s.size {
		n = s.size
	}

	out := make([]types.SpinRecord, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.start + s.size - 1 - i) % len(s.buf)
		rec := s.buf[idx]
		rec.Options = append([]string(nil), rec.Options...)
		out = append(out, rec)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Cap() int {
	return len(s.buf)
}
