package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeDB struct {
	stored  map[string]Pair
	fetchFn func(hardwareID string) (Pair, error)
}

func newFakeDB() *fakeDB {
	return &fakeDB{stored: make(map[string]Pair)}
}

func (f *fakeDB) Fetch(ctx context.Context, hardwareID string) (Pair, error) {
	if f.fetchFn != nil {
		return f.fetchFn(hardwareID)
	}
	return f.stored[hardwareID], nil
}

func (f *fakeDB) Store(ctx context.Context, hardwareID string, pair Pair) error {
	f.stored[hardwareID] = pair
	return nil
}

type fakeAnalyser struct {
	result Pair
	err    error
}

func (f fakeAnalyser) Distil(ctx context.Context, hardwareID, prompt, finalText string, previous Pair) (Pair, error) {
	return f.result, f.err
}

func TestContextBlockRendersBothFields(t *testing.T) {
	db := newFakeDB()
	db.stored["hw-1"] = Pair{Short: "likes dogs", Long: "works in robotics"}
	c := New(db, nil, nil)

	block := c.ContextBlock(context.Background(), "hw-1")

	want := "MEMORY CONTEXT\nSHORT-TERM MEMORY: likes dogs\nLONG-TERM MEMORY: works in robotics\nMEMORY USAGE INSTRUCTIONS: use this context only when relevant."
	if block != want {
		t.Fatalf("got %q, want %q", block, want)
	}
}

func TestContextBlockEmptyOnFetchError(t *testing.T) {
	db := newFakeDB()
	db.fetchFn = func(string) (Pair, error) { return Pair{}, errors.New("boom") }
	c := New(db, nil, nil)

	block := c.ContextBlock(context.Background(), "hw-1")
	if block != "" {
		t.Fatalf("got %q, want empty block on fetch error", block)
	}
}

func TestContextBlockEmptyOnTimeout(t *testing.T) {
	db := newFakeDB()
	db.fetchFn = func(string) (Pair, error) {
		time.Sleep(10 * time.Millisecond)
		return Pair{Short: "s", Long: "l"}, nil
	}
	c := New(db, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	block := c.ContextBlock(ctx, "hw-1")
	if block != "" {
		t.Fatalf("got %q, want empty block on timeout", block)
	}
}

func TestDistilPersistsAnalyserResult(t *testing.T) {
	db := newFakeDB()
	c := New(db, fakeAnalyser{result: Pair{Short: "new short", Long: "new long"}}, nil)

	c.Distil(context.Background(), "hw-1", "prompt", "final text")

	got := db.stored["hw-1"]
	if got.Short != "new short" || got.Long != "new long" {
		t.Fatalf("got %+v, want distilled pair stored", got)
	}
}

func TestDistilNoOpWithoutAnalyser(t *testing.T) {
	db := newFakeDB()
	c := New(db, nil, nil)

	c.Distil(context.Background(), "hw-1", "prompt", "final text")

	if len(db.stored) != 0 {
		t.Fatalf("expected no store without an analyser, got %+v", db.stored)
	}
}

func TestDistilSwallowsAnalyserError(t *testing.T) {
	db := newFakeDB()
	c := New(db, fakeAnalyser{err: errors.New("boom")}, nil)

	c.Distil(context.Background(), "hw-1", "prompt", "final text")

	if len(db.stored) != 0 {
		t.Fatalf("expected no store on analyser error, got %+v", db.stored)
	}
}

func TestDistilClampsOversizedFields(t *testing.T) {
	db := newFakeDB()
	huge := strings.Repeat("x", MaxFieldSize+100)
	c := New(db, fakeAnalyser{result: Pair{Short: huge, Long: huge}}, nil)

	c.Distil(context.Background(), "hw-1", "prompt", "final text")

	got := db.stored["hw-1"]
	if len(got.Short) != MaxFieldSize || len(got.Long) != MaxFieldSize {
		t.Fatalf("got short=%d long=%d, want both clamped to %d", len(got.Short), len(got.Long), MaxFieldSize)
	}
}
