package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDedupeTTL = 72 * time.Hour

// MemoryDedupeStore keeps processed event keys in process memory. Suitable
// for tests and single-instance deployments.
type MemoryDedupeStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemoryDedupeStore() *MemoryDedupeStore {
	return &MemoryDedupeStore{seen: make(map[string]bool)}
}

func (s *MemoryDedupeStore) MarkProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

// RedisDedupeStore shares dedupe state across gateway instances via SetNX.
// Keys expire after the providers' maximum redelivery horizon.
type RedisDedupeStore struct {
	client *redis.Client
}

func NewRedisDedupeStore(client *redis.Client) *RedisDedupeStore {
	return &RedisDedupeStore{client: client}
}

func (s *RedisDedupeStore) MarkProcessed(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, "webhook_dedupe:"+key, "1", redisDedupeTTL).Result()
}
