package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultProcessedTTL is how long a handled event id is remembered.
const DefaultProcessedTTL = 24 * time.Hour

const processedKeyPrefix = "relay:processed:"

// RedisProcessedStore records handled webhook events in Redis with a TTL.
type RedisProcessedStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisProcessedStore returns a Redis-backed tracker.
func NewRedisProcessedStore(client *redis.Client, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &RedisProcessedStore{redis: client, ttl: ttl}
}

// AlreadyProcessed checks if we've seen this provider event id.
func (s *RedisProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := s.redis.Exists(ctx, processedKey(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records an event id for the provider, returning false if it already exists.
func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, processedKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

// Release forgets an event id so a later redelivery is handled again.
func (s *RedisProcessedStore) Release(ctx context.Context, provider, eventID string) error {
	if err := s.redis.Del(ctx, processedKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("events: release processed: %w", err)
	}
	return nil
}

// MemoryProcessedStore is the single-process tracker used when Redis is not configured.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryProcessedStore returns an in-memory tracker.
func NewMemoryProcessedStore(ttl time.Duration) *MemoryProcessedStore {
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &MemoryProcessedStore{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// AlreadyProcessed checks if we've seen this provider event id within the TTL.
func (s *MemoryProcessedStore) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.seen[processedKey(provider, eventID)]
	return ok && s.now().Before(expiry), nil
}

// MarkProcessed records an event id, returning false if it is already recorded.
// Expired ids are pruned on write.
func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, expiry := range s.seen {
		if !now.Before(expiry) {
			delete(s.seen, k)
		}
	}
	key := processedKey(provider, eventID)
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = now.Add(s.ttl)
	return true, nil
}

// Release forgets an event id so a later redelivery is handled again.
func (s *MemoryProcessedStore) Release(_ context.Context, provider, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, processedKey(provider, eventID))
	return nil
}

func processedKey(provider, eventID string) string {
	return processedKeyPrefix + strings.ToLower(provider) + ":" + eventID
}
