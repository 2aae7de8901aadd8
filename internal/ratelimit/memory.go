package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count        int
	firstAttempt time.Time
	lastAttempt  time.Time
}

// MemoryStore is the single-process store. Entries whose window elapsed are
// dropped by a periodic Sweep; horizontal scaling fragments it, use the redis
// store there.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	window  time.Duration
	now     func() time.Time
}

func NewMemoryStore(window time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		window:  window,
		now:     time.Now,
	}
}

func (s *MemoryStore) Hit(ctx context.Context, key string) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.Sub(e.firstAttempt) >= s.window {
		e = &memoryEntry{firstAttempt: now}
		s.entries[key] = e
	}
	e.count++
	e.lastAttempt = now
	return e.count, e.firstAttempt.Add(s.window), nil
}

func (s *MemoryStore) Peek(ctx context.Context, key string) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.Sub(e.firstAttempt) >= s.window {
		return 0, time.Time{}, nil
	}
	return e.count, e.firstAttempt.Add(s.window), nil
}

// Sweep drops entries whose window has elapsed and reports how many were
// removed. The scheduler calls this on a fixed cadence to bound memory.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.firstAttempt) >= s.window {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
