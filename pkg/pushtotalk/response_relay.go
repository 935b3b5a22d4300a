package pushtotalk

import (
	"sync"

	"github.com/haloassist/halo/pkg/eventbus"
	"github.com/haloassist/halo/pkg/mode"
	"github.com/haloassist/halo/pkg/telemetry/logger"
)

// Player is the subset of *audio.Playback a ResponseRelay drives.
type Player interface {
	Enqueue(chunk []byte)
	Start() error
	Stop()
	Abort(reason string)
}

// ResponseRelay is the other half of the client's push-to-talk glue:
// where SessionManager turns a key press into a recognised-text
// request, ResponseRelay turns the server's streamed reply back into
// speaker output and the PROCESSING -> SLEEPING transition §4.2 names
// for "playback completion, gRPC failure, or interrupt". It also
// bridges the bare interrupt.request event (published by whichever UI
// affordance lets a user cut a response off) into the ModeController's
// Request vocabulary, a translation nothing else in the client
// performed.
type ResponseRelay struct {
	bus      *eventbus.Bus
	mode     *mode.Controller
	playback Player
	log      logger.Logger

	mu      sync.Mutex
	started bool
}

// NewResponseRelay wires a ResponseRelay to bus.
func NewResponseRelay(bus *eventbus.Bus, modeCtl *mode.Controller, playback Player, log logger.Logger) *ResponseRelay {
	if log == nil {
		log = logger.Nop{}
	}
	r := &ResponseRelay{bus: bus, mode: modeCtl, playback: playback, log: log}
	bus.Subscribe("grpc.response.audio", eventbus.HIGH, r.onAudio)
	bus.Subscribe("grpc.request_completed", eventbus.HIGH, r.onCompleted)
	bus.Subscribe("grpc.request_failed", eventbus.HIGH, r.onFailed)
	bus.Subscribe("playback.completed", eventbus.HIGH, r.onPlaybackCompleted)
	bus.Subscribe("interrupt.request", eventbus.CRITICAL, r.onInterruptRequest)
	return r
}

func (r *ResponseRelay) onAudio(ev eventbus.Event) {
	data, ok := ev.Payload.(map[string]any)
	if !ok {
		return
	}
	chunk, _ := data["audio_data"].([]byte)
	if len(chunk) == 0 {
		return
	}

	r.mu.Lock()
	if !r.started {
		if err := r.playback.Start(); err != nil {
			r.log.Warn("pushtotalk: playback start failed", "error", err)
		}
		r.started = true
	}
	r.mu.Unlock()

	r.playback.Enqueue(chunk)
}

func (r *ResponseRelay) onCompleted(ev eventbus.Event) {
	go func() {
		r.playback.Stop()
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
	}()
}

func (r *ResponseRelay) onFailed(ev eventbus.Event) {
	data, _ := ev.Payload.(map[string]any)
	reason, _ := data["error"].(string)

	r.playback.Abort(reason)
	r.mu.Lock()
	r.started = false
	r.mu.Unlock()

	sessionID := sessionIDOf(ev)
	if sessionID == 0 {
		sessionID = r.mode.ActiveSession()
	}
	r.mode.Handle(mode.Request{Target: mode.Sleeping, Source: mode.SourceGRPC, SessionID: sessionID})
}

func (r *ResponseRelay) onPlaybackCompleted(ev eventbus.Event) {
	r.mode.Handle(mode.Request{Target: mode.Sleeping, Source: mode.SourcePlayback, SessionID: r.mode.ActiveSession()})
}

func (r *ResponseRelay) onInterruptRequest(ev eventbus.Event) {
	sessionID := sessionIDOf(ev)
	if sessionID == 0 {
		sessionID = r.mode.ActiveSession()
	}
	r.playback.Abort("interrupt")
	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
	r.mode.Handle(mode.Request{Target: mode.Sleeping, Source: mode.SourceInterrupt, SessionID: sessionID})
}
