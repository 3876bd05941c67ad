package otpserver

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/northpay/authflow"
)

// MemoryStore keeps code challenges in process memory. Suitable for tests and
// single-node deployments; use RedisStore when issuance must be shared.
type MemoryStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *Record]
}

// NewMemoryStore describes the new memory store operation and its observable behavior.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New[string, *Record](
		ttlcache.WithDisableTouchOnHit[string, *Record](),
	)
	go cache.Start()
	return &MemoryStore{cache: cache}
}

// Stop halts the background expiration loop.
func (s *MemoryStore) Stop() {
	s.cache.Stop()
}

func memoryKey(identifier string, purpose authflow.Purpose) string {
	return string(purpose) + ":" + identifier
}

// Save describes the save operation and its observable behavior.
func (s *MemoryStore) Save(
	_ context.Context,
	identifier string,
	purpose authflow.Purpose,
	record *Record,
	ttl time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.cache.Set(memoryKey(identifier, purpose), &clone, ttl)
	return nil
}

// Get describes the get operation and its observable behavior.
func (s *MemoryStore) Get(_ context.Context, identifier string, purpose authflow.Purpose) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(identifier, purpose)
}

func (s *MemoryStore) getLocked(identifier string, purpose authflow.Purpose) (*Record, error) {
	item := s.cache.Get(memoryKey(identifier, purpose))
	if item == nil {
		return nil, ErrChallengeNotFound
	}
	record := item.Value()
	if time.Now().Unix() > record.ExpiresAt {
		s.cache.Delete(memoryKey(identifier, purpose))
		return nil, ErrChallengeExpired
	}
	clone := *record
	return &clone, nil
}

// Delete describes the delete operation and its observable behavior.
func (s *MemoryStore) Delete(_ context.Context, identifier string, purpose authflow.Purpose) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(identifier, purpose)
	existed := s.cache.Get(key) != nil
	s.cache.Delete(key)
	return existed, nil
}

// RecordFailure describes the record failure operation and its observable behavior.
func (s *MemoryStore) RecordFailure(
	_ context.Context,
	identifier string,
	purpose authflow.Purpose,
	maxAttempts int,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getLocked(identifier, purpose)
	if err != nil {
		return false, err
	}

	record.Attempts++
	if int(record.Attempts) >= maxAttempts {
		s.cache.Delete(memoryKey(identifier, purpose))
		return true, nil
	}

	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl <= 0 {
		s.cache.Delete(memoryKey(identifier, purpose))
		return false, ErrChallengeExpired
	}
	s.cache.Set(memoryKey(identifier, purpose), record, ttl)
	return false, nil
}
