package interrupt

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedisRegistry skips the test unless a real Redis instance is
// reachable at HALO_TEST_REDIS_ADDR; there is no in-process fake wired
// into this module, and RedisRegistry is thin enough that its exercised
// behavior is the go-redis client itself.
func newTestRedisRegistry(t *testing.T) *RedisRegistry {
	addr := os.Getenv("HALO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HALO_TEST_REDIS_ADDR not set, skipping redis-backed interrupt registry test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRegistry(client, WithRedisTTL(time.Second), WithRedisPrefix("halo-test"))
}

func TestRedisRegistryMarkIsMarkedClear(t *testing.T) {
	r := newTestRedisRegistry(t)
	ctx := context.Background()

	marked, err := r.IsMarked(ctx, "hw-1")
	if err != nil || marked {
		t.Fatalf("expected unmarked, got marked=%v err=%v", marked, err)
	}

	if err := r.Mark(ctx, "hw-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	marked, err = r.IsMarked(ctx, "hw-1")
	if err != nil || !marked {
		t.Fatalf("expected marked, got marked=%v err=%v", marked, err)
	}

	if err := r.Clear(ctx, "hw-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	marked, _ = r.IsMarked(ctx, "hw-1")
	if marked {
		t.Fatal("expected clear to remove the mark")
	}
}

func TestRedisRegistryMarkExpires(t *testing.T) {
	r := newTestRedisRegistry(t)
	ctx := context.Background()

	if err := r.Mark(ctx, "hw-2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	time.Sleep(2 * time.Second)

	marked, err := r.IsMarked(ctx, "hw-2")
	if err != nil || marked {
		t.Fatalf("expected mark to have expired, got marked=%v err=%v", marked, err)
	}
}
