package tracking

import (
	"context"
	"sync"
	"time"
)

// MemoryCodeStore is a process-local CodeStore and RateLimiter for tests and
// single-instance deployments. Multi-instance runs need the Redis-backed
// store or verification becomes nondeterministic across instances.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]memoryCode
	// requests holds, per rate-limit key, the expiry instant of every
	// granted request still inside its rolling window.
	requests map[string][]time.Time
	now      func() time.Time
}

type memoryCode struct {
	code      string
	expiresAt time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{
		codes:    make(map[string]memoryCode),
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryCodeStore) Put(_ context.Context, key, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictExpired(now)

	s.codes[key] = memoryCode{code: code, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) VerifyAndDelete(_ context.Context, key, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[key]
	if !ok {
		return false, nil
	}

	if s.now().After(entry.expiresAt) {
		delete(s.codes, key)
		return false, nil
	}

	if entry.code != code {
		return false, nil
	}

	delete(s.codes, key)
	return true, nil
}

// Allow grants a request when fewer than limit requests were granted for key
// within the rolling window ending now. A request exactly window old no
// longer counts.
func (s *MemoryCodeStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictExpired(now)

	if len(s.requests[key]) >= limit {
		return false, nil
	}

	s.requests[key] = append(s.requests[key], now.Add(window))
	return true, nil
}

// evictExpired drops expired codes and rolled-out request entries so a
// long-lived process does not accumulate stale keys. Callers hold mu.
func (s *MemoryCodeStore) evictExpired(now time.Time) {
	for key, entry := range s.codes {
		if now.After(entry.expiresAt) {
			delete(s.codes, key)
		}
	}

	for key, expiries := range s.requests {
		kept := expiries[:0]
		for _, expiry := range expiries {
			if expiry.After(now) {
				kept = append(kept, expiry)
			}
		}
		if len(kept) == 0 {
			delete(s.requests, key)
			continue
		}
		s.requests[key] = kept
	}
}
