package interrupt

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRegistryMarkAndIsMarked(t *testing.T) {
	r := NewMemoryRegistry(5 * time.Second)
	ctx := context.Background()

	marked, err := r.IsMarked(ctx, "hw-1")
	if err != nil || marked {
		t.Fatalf("unmarked hardware_id reported marked: %v %v", marked, err)
	}

	if err := r.Mark(ctx, "hw-1"); err != nil {
		t.Fatalf("mark: %v", err)
	}

	marked, err = r.IsMarked(ctx, "hw-1")
	if err != nil || !marked {
		t.Fatalf("marked hardware_id reported unmarked: %v %v", marked, err)
	}
}

func TestMemoryRegistryClear(t *testing.T) {
	r := NewMemoryRegistry(5 * time.Second)
	ctx := context.Background()
	_ = r.Mark(ctx, "hw-1")
	_ = r.Clear(ctx, "hw-1")

	marked, _ := r.IsMarked(ctx, "hw-1")
	if marked {
		t.Fatal("expected clear to remove the mark")
	}
}

func TestMemoryRegistryExpiresAfterTTL(t *testing.T) {
	r := NewMemoryRegistry(time.Minute)
	now := time.Now()
	r.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = r.Mark(ctx, "hw-1")
	now = now.Add(2 * time.Minute)

	marked, err := r.IsMarked(ctx, "hw-1")
	if err != nil || marked {
		t.Fatalf("expected mark to have expired, got marked=%v err=%v", marked, err)
	}
}

func TestMemoryRegistrySweepRemovesExpired(t *testing.T) {
	r := NewMemoryRegistry(time.Minute)
	now := time.Now()
	r.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = r.Mark(ctx, "hw-1")
	_ = r.Mark(ctx, "hw-2")
	now = now.Add(2 * time.Minute)

	if removed := r.Sweep(); removed != 2 {
		t.Fatalf("got %d removed, want 2", removed)
	}
	if len(r.marks) != 0 {
		t.Fatalf("expected marks map empty after sweep, got %d entries", len(r.marks))
	}
}

func TestMemoryRegistryDefaultTTLAppliedWhenNonPositive(t *testing.T) {
	r := NewMemoryRegistry(0)
	if r.ttl != DefaultTTL {
		t.Fatalf("got ttl %v, want default %v", r.ttl, DefaultTTL)
	}
}
