// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	mu      sync.Mutex
	rec     Record
	exists  bool
	removed bool
}

// MemoryStore keeps attempt records in process memory with one lock per key.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, cfg Config) (Record, bool, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			e = &memoryEntry{}
			s.entries[key] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.removed {
			// Lost a race with Cleanup; look the key up again.
			e.mu.Unlock()
			continue
		}
		rec, limited := advance(e.rec, e.exists, key, now, cfg)
		e.rec = rec
		e.exists = true
		e.mu.Unlock()

		return rec, limited, nil
	}
}

// Get returns the current record for key, if any.
func (s *MemoryStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return Record{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || !e.exists {
		return Record{}, false
	}
	return e.rec, true
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup discards records whose window started more than maxAge before now
// and returns how many were removed.
func (s *MemoryStore) Cleanup(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		e.mu.Lock()
		if !e.exists || now.Sub(e.rec.WindowStart) >= maxAge {
			e.removed = true
			delete(s.entries, key)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
// The returned channel is closed once the loop has exited.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval, maxAge time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				s.Cleanup(now, maxAge)
			case <-ctx.Done():
				return
			}
		}
	}()

	return done
}
