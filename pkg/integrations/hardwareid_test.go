package integrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haloassist/halo/pkg/eventbus"
)

func TestHardwareIDProviderMintsAndCachesOnFirstObtain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hardware_id")
	bus := eventbus.New(nil)
	p := NewHardwareIDProvider(bus, path)

	id1, err := p.Obtain()
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if id1 == "" {
		t.Fatal("expected a non-empty id")
	}

	b, err := os.ReadFile(path)
	if err != nil || string(b) != id1 {
		t.Fatalf("got cache file %q, err %v, want %q", b, err, id1)
	}

	id2, err := p.Obtain()
	if err != nil || id2 != id1 {
		t.Fatalf("got %q, %v, want %q, nil", id2, err, id1)
	}
}

func TestHardwareIDProviderReadsExistingCacheFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hardware_id")
	if err := os.WriteFile(path, []byte("fixed-id-123"), 0o600); err != nil {
		t.Fatal(err)
	}
	bus := eventbus.New(nil)
	p := NewHardwareIDProvider(bus, path)

	id, err := p.Obtain()
	if err != nil || id != "fixed-id-123" {
		t.Fatalf("got %q, %v, want fixed-id-123", id, err)
	}
}

func TestHardwareIDProviderAnswersRequestEvent(t *testing.T) {
	dir := t.TempDir()
	bus := eventbus.New(nil)
	_ = NewHardwareIDProvider(bus, filepath.Join(dir, "hardware_id"))

	var got map[string]any
	bus.Subscribe("hardware.id_response", eventbus.HIGH, func(ev eventbus.Event) {
		got = ev.Payload.(map[string]any)
	})

	bus.Publish("hardware.id_request", nil, eventbus.HIGH)

	if got == nil || got["uuid"] == "" {
		t.Fatalf("got %v, want a uuid response", got)
	}
}
