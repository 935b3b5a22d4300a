// Package pushtotalk is the client's session glue: it listens for the
// press/release events KeyboardMonitor publishes and drives
// AudioCapture, SpeechRecogniser and the ModeController through one
// push-to-talk interaction, the way
// input_processing_integration.py's InputProcessingIntegration owns
// the press-to-release lifecycle while leaving each concrete adapter
// (recording, recognition, screenshot) a separate, independently
// wired module.
//
// Audio recording starts unconditionally on raw key-press, matching
// §4.4's "record while held" contract; recording_start does not wait
// for long-press classification since that can only be known in
// hindsight, at release. SLEEPING -> LISTENING is requested once
// keyboard.long_press fires (still at release, but before any STT
// round trip begins), so the Controller spends its LISTENING dwell
// covering transcription rather than the key hold itself. A release
// that never saw a long_press leaves the Controller in SLEEPING and
// its capture buffer is discarded unrecognised, mirroring the
// original's short-press-is-not-a-session behaviour.
package pushtotalk

import (
	"context"
	"time"

	"github.com/haloassist/halo/pkg/eventbus"
	"github.com/haloassist/halo/pkg/integrations"
	"github.com/haloassist/halo/pkg/mode"
	"github.com/haloassist/halo/pkg/orchestrator"
	"github.com/haloassist/halo/pkg/speechrecogniser"
	"github.com/haloassist/halo/pkg/telemetry/logger"
)

// Capturer is the subset of *audio.Capture a SessionManager drives.
type Capturer interface {
	Start() error
	Stop() ([]byte, error)
}

// Recogniser is the subset of *speechrecogniser.Recogniser a
// SessionManager drives.
type Recogniser interface {
	Recognise(ctx context.Context, pcm []byte, languages []orchestrator.Language) (speechrecogniser.Result, error)
}

// SessionManager wires one push-to-talk key to a Capture/Recogniser
// pair and the Mode Controller that arbitrates their effect.
type SessionManager struct {
	bus        *eventbus.Bus
	mode       *mode.Controller
	capture    Capturer
	recogniser Recogniser
	screenshot *integrations.ScreenshotCapture
	hardware   *integrations.HardwareIDProvider
	languages  []orchestrator.Language
	log        logger.Logger
}

// New wires a SessionManager to bus. screenshot may be nil to disable
// the on-long-press screenshot capture named in §4.8.
func New(
	bus *eventbus.Bus,
	modeCtl *mode.Controller,
	capture Capturer,
	recogniser Recogniser,
	screenshot *integrations.ScreenshotCapture,
	hardware *integrations.HardwareIDProvider,
	languages []orchestrator.Language,
	log logger.Logger,
) *SessionManager {
	if log == nil {
		log = logger.Nop{}
	}
	if len(languages) == 0 {
		languages = []orchestrator.Language{orchestrator.LanguageEn}
	}
	m := &SessionManager{
		bus:        bus,
		mode:       modeCtl,
		capture:    capture,
		recogniser: recogniser,
		screenshot: screenshot,
		hardware:   hardware,
		languages:  languages,
		log:        log,
	}
	bus.Subscribe("voice.recording_start", eventbus.HIGH, m.onRecordingStart)
	bus.Subscribe("keyboard.long_press", eventbus.HIGH, m.onLongPress)
	bus.Subscribe("keyboard.release", eventbus.HIGH, m.onRelease)
	return m
}

func (m *SessionManager) onRecordingStart(ev eventbus.Event) {
	if err := m.capture.Start(); err != nil {
		m.log.Error("pushtotalk: capture start failed", "error", err)
	}
}

func (m *SessionManager) onLongPress(ev eventbus.Event) {
	sessionID := sessionIDOf(ev)
	if sessionID == 0 {
		return
	}
	m.mode.Handle(mode.Request{Target: mode.Listening, Source: mode.SourceKeyboardLongPress, SessionID: sessionID})
	if m.screenshot != nil {
		go m.screenshot.Capture(context.Background(), sessionID)
	}
}

func (m *SessionManager) onRelease(ev eventbus.Event) {
	sessionID := sessionIDOf(ev)

	pcm, err := m.capture.Stop()
	if err != nil {
		m.log.Warn("pushtotalk: capture stop failed", "error", err)
	}

	if m.mode.Current() != mode.Listening || m.mode.ActiveSession() != sessionID {
		return
	}
	if len(pcm) == 0 {
		m.mode.Handle(mode.Request{Target: mode.Sleeping, Source: mode.SourceKeyboardRelease, SessionID: sessionID})
		return
	}

	go m.recognise(sessionID, pcm)
}

func (m *SessionManager) recognise(sessionID int64, pcm []byte) {
	hardwareID := ""
	if m.hardware != nil {
		hardwareID, _ = m.hardware.Obtain()
	}

	ctx, cancel := context.WithTimeout(context.Background(), speechrecogniser.DefaultTimeout*time.Duration(len(m.languages)))
	defer cancel()

	result, err := m.recogniser.Recognise(ctx, pcm, m.languages)
	if err != nil || result.Text == "" {
		m.bus.Publish("voice.recognition_failed", map[string]any{
			"session_id": sessionID,
			"error":      errString(err),
		}, eventbus.HIGH)
		m.mode.Handle(mode.Request{Target: mode.Sleeping, Source: mode.SourceKeyboardRelease, SessionID: sessionID})
		return
	}

	m.bus.Publish("voice.recognition_completed", map[string]any{
		"session_id":  sessionID,
		"hardware_id": hardwareID,
		"text":        result.Text,
	}, eventbus.HIGH)
	m.mode.Handle(mode.Request{Target: mode.Processing, Source: mode.SourceKeyboardRelease, SessionID: sessionID})
}

func sessionIDOf(ev eventbus.Event) int64 {
	data, ok := ev.Payload.(map[string]any)
	if !ok {
		return 0
	}
	id, _ := data["session_id"].(int64)
	return id
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
