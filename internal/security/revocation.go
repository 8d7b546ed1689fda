package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList remembers jits of tokens that were explicitly revoked. Entries only need
// to live until the token would have expired on its own.
type RevocationList interface {
	Revoke(ctx context.Context, jit string, until time.Time) error
	IsRevoked(ctx context.Context, jit string) (bool, error)
}

const revokedKeyPrefix = "revoked:"

// RedisRevocationList stores revoked jits as keys that expire with the token.
type RedisRevocationList struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisRevocationList returns a RevocationList backed by client.
func NewRedisRevocationList(client redis.UniversalClient) *RedisRevocationList {
	return &RedisRevocationList{client: client, now: time.Now}
}

// Revoke records jit until the given time. Already expired tokens are skipped.
func (l *RedisRevocationList) Revoke(ctx context.Context, jit string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, revokedKeyPrefix+jit, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revocation: set: %w", err)
	}
	return nil
}

// IsRevoked reports whether jit is on the list.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, jit string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKeyPrefix+jit).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: exists: %w", err)
	}
	return n == 1, nil
}

// MemoryRevocationList is an in-process RevocationList for development and tests.
type MemoryRevocationList struct {
	mu   sync.Mutex
	m    map[string]time.Time
	nowF func() time.Time
}

// NewMemoryRevocationList returns an empty in-memory list.
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{m: make(map[string]time.Time), nowF: time.Now}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jit string, until time.Time) error {
	if !until.After(l.nowF()) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[jit] = until
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jit string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.m[jit]
	if !ok {
		return false, nil
	}
	if !until.After(l.nowF()) {
		delete(l.m, jit)
		return false, nil
	}
	return true, nil
}
