package integrations

import (
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haloassist/halo/pkg/eventbus"
)

// HardwareIDProvider obtains a stable per-installation UUID once,
// caches it to disk, and serves it on request, grounded on
// hardware_id_integration.py's "get once, cache in memory, publish on
// startup, answer hardware.id_request instantly" contract.
type HardwareIDProvider struct {
	bus       *eventbus.Bus
	cachePath string

	mu    sync.Mutex
	cache string
}

// NewHardwareIDProvider wires a provider backed by the file at
// cachePath (created on first Obtain if absent).
func NewHardwareIDProvider(bus *eventbus.Bus, cachePath string) *HardwareIDProvider {
	p := &HardwareIDProvider{bus: bus, cachePath: cachePath}
	bus.Subscribe("hardware.id_request", eventbus.HIGH, p.onRequest)
	return p
}

// Obtain returns the cached UUID, reading it from disk or minting and
// persisting a new one on first call.
func (p *HardwareIDProvider) Obtain() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache != "" {
		return p.cache, nil
	}

	if b, err := os.ReadFile(p.cachePath); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			p.cache = id
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.WriteFile(p.cachePath, []byte(id), 0o600); err != nil {
		return "", err
	}
	p.cache = id
	return id, nil
}

// PublishObtained obtains the ID and announces it as hardware.id_obtained,
// matching the original's "publish forcibly on startup for the gRPC
// client" behaviour.
func (p *HardwareIDProvider) PublishObtained() {
	id, err := p.Obtain()
	if err != nil {
		p.bus.Publish("hardware.id_error", map[string]any{"error": err.Error()}, eventbus.HIGH)
		return
	}
	p.bus.Publish("hardware.id_obtained", map[string]any{"uuid": id, "source": "cache"}, eventbus.HIGH)
}

func (p *HardwareIDProvider) onRequest(ev eventbus.Event) {
	id, err := p.Obtain()
	if err != nil {
		p.bus.Publish("hardware.id_error", map[string]any{"error": err.Error()}, eventbus.HIGH)
		return
	}
	p.bus.Publish("hardware.id_response", map[string]any{"uuid": id, "source": "cache"}, eventbus.HIGH)
}
