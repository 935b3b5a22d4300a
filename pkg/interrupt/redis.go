package interrupt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry backs the InterruptRegistry with Redis SETEX/EXISTS/DEL,
// so multiple server processes behind the same gRPC listener share
// interrupt state. Grounded on the client/TTL/prefix idiom used for
// conversation state: a plain key per hardware_id, value unused beyond
// existence, TTL carried on the key itself rather than tracked
// separately.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisRegistry.
type RedisOption func(*RedisRegistry)

// WithRedisTTL overrides the default mark TTL.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRegistry) { r.ttl = ttl }
}

// WithRedisPrefix overrides the default key prefix "halo".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisRegistry) { r.prefix = prefix }
}

// NewRedisRegistry constructs a RedisRegistry over an already-dialed
// client.
func NewRedisRegistry(client *redis.Client, opts ...RedisOption) *RedisRegistry {
	r := &RedisRegistry{
		client: client,
		ttl:    DefaultTTL,
		prefix: "halo",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRegistry) key(hardwareID string) string {
	return fmt.Sprintf("%s:interrupt:%s", r.prefix, hardwareID)
}

func (r *RedisRegistry) Mark(ctx context.Context, hardwareID string) error {
	if err := r.client.Set(ctx, r.key(hardwareID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("interrupt: redis set failed: %w", err)
	}
	return nil
}

func (r *RedisRegistry) IsMarked(ctx context.Context, hardwareID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(hardwareID)).Result()
	if err != nil {
		return false, fmt.Errorf("interrupt: redis exists failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRegistry) Clear(ctx context.Context, hardwareID string) error {
	if err := r.client.Del(ctx, r.key(hardwareID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("interrupt: redis del failed: %w", err)
	}
	return nil
}
