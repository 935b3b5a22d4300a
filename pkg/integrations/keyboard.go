// Package integrations wires the client's minimal concrete adapters
// named in spec §1/§6 but left unspecified as Go types: KeyboardMonitor,
// HardwareIdProvider, NetworkProbe, and ScreenshotCapture. Each is a
// thin publisher onto the EventBus, grounded on
// original_source/client/integration/integrations/*.py's equivalent
// thin-wrapper-over-a-module shape.
package integrations

import (
	"context"
	"time"

	"github.com/haloassist/halo/pkg/eventbus"
)

// RawKeyEvent is one press/release transition of the activation key, as
// delivered by a platform-specific hook. halo does not ship that hook
// here (no global-hotkey library appears anywhere in the reference
// corpus); KeySource is the seam a platform integration plugs into.
type RawKeyEvent struct {
	Pressed bool
	At      time.Time
}

// KeySource delivers RawKeyEvents for the activation key until ctx is
// cancelled, then closes its channel.
type KeySource interface {
	Events(ctx context.Context) <-chan RawKeyEvent
}

// DefaultLongPressThreshold is the press duration at or above which a
// release is classified long_press rather than short_press.
const DefaultLongPressThreshold = 400 * time.Millisecond

// KeyboardMonitor classifies raw press/release pairs into the
// keyboard.{long_press,short_press,release} events named in §6,
// matching the original's KeyEventType.{LONG_PRESS,SHORT_PRESS,RELEASE}
// split on a hold-duration threshold.
type KeyboardMonitor struct {
	bus       *eventbus.Bus
	source    KeySource
	threshold time.Duration
}

// NewKeyboardMonitor wires a KeyboardMonitor to bus and source.
func NewKeyboardMonitor(bus *eventbus.Bus, source KeySource, threshold time.Duration) *KeyboardMonitor {
	if threshold <= 0 {
		threshold = DefaultLongPressThreshold
	}
	return &KeyboardMonitor{bus: bus, source: source, threshold: threshold}
}

// Run consumes source.Events until ctx is cancelled, publishing
// voice.recording_start on press and keyboard.{long_press,short_press}
// plus keyboard.release and voice.recording_stop on release. A short
// press additionally publishes interrupt.request at CRITICAL priority,
// so it reaches every interrupt consumer (ResponseRelay, GrpcClient)
// without each of them having to also subscribe to keyboard.short_press.
// Every event carries session_id, the press timestamp in nanoseconds,
// per §4.3's "session_id is the monotonic wall-clock timestamp at press".
func (m *KeyboardMonitor) Run(ctx context.Context) {
	var pressedAt time.Time
	var sessionID int64
	var pressed bool

	for ev := range m.source.Events(ctx) {
		if ev.Pressed {
			pressedAt = ev.At
			sessionID = ev.At.UnixNano()
			pressed = true
			m.bus.Publish("voice.recording_start", map[string]any{
				"session_id": sessionID,
				"timestamp":  ev.At,
			}, eventbus.HIGH)
			continue
		}
		if !pressed {
			continue
		}
		pressed = false
		duration := ev.At.Sub(pressedAt)

		name := "keyboard.short_press"
		if duration >= m.threshold {
			name = "keyboard.long_press"
		}
		m.bus.Publish(name, map[string]any{
			"session_id": sessionID,
			"duration":   duration,
			"timestamp":  ev.At,
		}, eventbus.HIGH)
		if name == "keyboard.short_press" {
			// §4.2/§5's "keyboard.short_press or interrupt.request" is one
			// signal with two names depending on source; a short press is
			// itself an interrupt trigger, so it is re-published as
			// interrupt.request here rather than asking every interrupt
			// consumer (ResponseRelay, GrpcClient) to subscribe twice.
			m.bus.Publish("interrupt.request", map[string]any{
				"session_id": sessionID,
				"source":     "keyboard.short_press",
				"timestamp":  ev.At,
			}, eventbus.CRITICAL)
		}
		m.bus.Publish("keyboard.release", map[string]any{
			"session_id": sessionID,
			"duration":   duration,
			"timestamp":  ev.At,
		}, eventbus.HIGH)
		m.bus.Publish("voice.recording_stop", map[string]any{
			"session_id": sessionID,
			"timestamp":  ev.At,
		}, eventbus.HIGH)
	}
}
