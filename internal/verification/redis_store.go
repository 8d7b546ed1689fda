package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errRedisUnavailable = errors.New("verification store unavailable")

// RedisStore keeps challenges as JSON strings with a native Redis expiry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore returns a Store backed by client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, key string, c Challenge, ttl time.Duration) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Challenge, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	var c Challenge
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("verification: decode challenge: %w", err)
	}
	return &c, nil
}

// Update uses SET XX KEEPTTL so a wrong attempt never extends the challenge's life.
func (s *RedisStore) Update(ctx context.Context, key string, c Challenge) (bool, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return false, err
	}
	err = s.client.SetArgs(ctx, key, b, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return n == 1, nil
}
