package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/x402-foundation/permitledger"
)

type cachedRelay struct {
	result      *permitledger.RelayResult
	fingerprint string
	expiresAt   time.Time
}

type inFlightRelay struct {
	done        chan struct{}
	fingerprint string
}

// InMemoryStore is a process-local RelayStore.
// Expired entries are dropped lazily on access and on Complete.
type InMemoryStore struct {
	mu       sync.Mutex
	entries  map[string]cachedRelay
	inFlight map[string]inFlightRelay
	ttl      time.Duration
	now      func() time.Time
}

// NewInMemoryStore creates an in-memory relay store that keeps results for ttl
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		entries:  make(map[string]cachedRelay),
		inFlight: make(map[string]inFlightRelay),
		ttl:      ttl,
		now:      time.Now,
	}
}

// CheckAndMark implements RelayStore
func (s *InMemoryStore) CheckAndMark(key, fingerprint string) (RelayStatus, *permitledger.RelayResult, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.lookupLocked(key); ok {
		if entry.fingerprint != fingerprint {
			return StatusConflict, nil, nil
		}
		return StatusCached, entry.result, nil
	}

	if pending, exists := s.inFlight[key]; exists {
		if pending.fingerprint != fingerprint {
			return StatusConflict, nil, nil
		}
		return StatusInFlight, nil, pending.done
	}

	done := make(chan struct{})
	s.inFlight[key] = inFlightRelay{done: done, fingerprint: fingerprint}
	return StatusNotFound, nil, done
}

// WaitForResult implements RelayStore
func (s *InMemoryStore) WaitForResult(ctx context.Context, key string, done chan struct{}) (*permitledger.RelayResult, error) {
	select {
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		entry, _ := s.lookupLocked(key)
		return entry.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Complete implements RelayStore
func (s *InMemoryStore) Complete(key string, result *permitledger.RelayResult, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = cachedRelay{
		result:      result,
		fingerprint: s.inFlight[key].fingerprint,
		expiresAt:   now.Add(s.ttl),
	}
	delete(s.inFlight, key)
	close(done)

	for k, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Fail implements RelayStore
func (s *InMemoryStore) Fail(key string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, key)
	close(done)
}

// Len returns the number of cached results, expired or not
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *InMemoryStore) lookupLocked(key string) (cachedRelay, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return cachedRelay{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return cachedRelay{}, false
	}
	return entry, true
}

var _ RelayStore = (*InMemoryStore)(nil)
