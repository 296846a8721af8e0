package ecommerce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erp/marketsync/internal/domain/integration"
)

// CooldownStore records throttling windows shared by every caller of an account
type CooldownStore interface {
	// Remaining returns how long the key is still cooling down, or 0
	Remaining(ctx context.Context, key string) (time.Duration, error)
	// Extend starts a cooldown of at least d for the key
	Extend(ctx context.Context, key string, d time.Duration) error
}

// cooldownKey scopes a throttling window to the account the call is made for,
// so it survives token refreshes. Calls without an account fall back to a
// digest of the access token.
func cooldownKey(ctx context.Context, accessToken string) string {
	if account, ok := integration.AccountFrom(ctx); ok {
		return "acct:" + account
	}
	sum := sha256.Sum256([]byte(accessToken))
	return "tok:" + hex.EncodeToString(sum[:12])
}

// RedisCooldownStore keeps cooldowns in Redis so every replica honors them
type RedisCooldownStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCooldownStore creates a Redis backed cooldown store
func NewRedisCooldownStore(client redis.UniversalClient, prefix string) *RedisCooldownStore {
	if prefix == "" {
		prefix = "msync:cooldown:"
	}
	return &RedisCooldownStore{client: client, prefix: prefix}
}

// Remaining implements CooldownStore
func (s *RedisCooldownStore) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, s.prefix+key).Result()
	if err != nil {
		return 0, err
	}
	// -2 (missing) and -1 (no expiry) both mean not cooling down
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// Extend implements CooldownStore. A longer window already in place is kept.
func (s *RedisCooldownStore) Extend(ctx context.Context, key string, d time.Duration) error {
	current, err := s.Remaining(ctx, key)
	if err != nil {
		return err
	}
	if current >= d {
		return nil
	}
	return s.client.Set(ctx, s.prefix+key, "1", d).Err()
}

// LocalCooldownStore keeps cooldowns in process memory
type LocalCooldownStore struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewLocalCooldownStore creates an in-memory cooldown store
func NewLocalCooldownStore() *LocalCooldownStore {
	return &LocalCooldownStore{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Remaining implements CooldownStore
func (s *LocalCooldownStore) Remaining(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.until[key]
	if !ok {
		return 0, nil
	}
	remaining := until.Sub(s.now())
	if remaining <= 0 {
		delete(s.until, key)
		return 0, nil
	}
	return remaining, nil
}

// Extend implements CooldownStore
func (s *LocalCooldownStore) Extend(_ context.Context, key string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := s.now().Add(d)
	if until.After(s.until[key]) {
		s.until[key] = until
	}
	return nil
}

var (
	_ CooldownStore = (*RedisCooldownStore)(nil)
	_ CooldownStore = (*LocalCooldownStore)(nil)
)
