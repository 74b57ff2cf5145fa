package upstream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a byte cache with per-key TTL. Implementations must be safe for
// concurrent use and byte-for-byte transparent: Get returns exactly the
// bytes previously passed to Set for the same key.
type Store interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// IO errors against a remote store surface as (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheKey derives the response-cache key from a normalized serialization of
// the query, so equivalent queries with reordered parameters collide.
func CacheKey(normalized []byte) string {
	hash := sha256.Sum256(normalized)
	return hex.EncodeToString(hash[:])
}

// MemoryStore is the in-memory Store, suitable for single-instance
// deployments. Stale entries are treated as absent on lookup and purged by
// a periodic background sweep.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
	expiry map[string]time.Time
	now    func() time.Time

	sweepOnce sync.Once
	stop      chan struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		expiry: make(map[string]time.Time),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

// Get returns the cached value if present and not expired. Expired entries
// are cleaned up lazily.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.expiry[key]
	if !exists {
		return nil, false, nil
	}
	if !s.now().Before(expiry) {
		delete(s.values, key)
		delete(s.expiry, key)
		return nil, false, nil
	}
	return s.values[key], true, nil
}

// Set stores value under key for the given TTL, overwriting any previous
// entry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.expiry[key] = s.now().Add(ttl)
	return nil
}

// Len returns the number of entries currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// StartSweeper launches the background sweep bounding memory use. Idempotent.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	s.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.sweep()
				case <-s.stop:
					return
				}
			}
		}()
	})
}

// Stop terminates the background sweeper.
func (s *MemoryStore) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, expiry := range s.expiry {
		if !now.Before(expiry) {
			delete(s.values, key)
			delete(s.expiry, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)

// RedisStore is a Redis-backed Store for deployments where the response
// cache must be shared across instances. TTL handling is delegated to Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over the given client. All keys are
// namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

var _ Store = (*RedisStore)(nil)
