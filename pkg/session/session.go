// Package session tracks the per-interaction state born on key-press and
// destroyed when the ModeController returns to SLEEPING: the PCM
// recognition result, the screenshot path, and whether an RPC is
// in-flight. A Session's text and screenshot may each be written at
// most once.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadySet is returned when a write-once field is written twice.
var ErrAlreadySet = errors.New("session: field already set")

// Session is the causally connected state for one push-to-talk
// interaction, keyed by a monotonic client-assigned ID (wall-clock
// timestamp in nanoseconds at key-press).
type Session struct {
	mu sync.Mutex

	ID             int64
	HardwareID     string
	StartTime      time.Time
	RecordingActive bool

	recognised     bool
	text           string
	screenshotSet  bool
	screenshotPath string

	activeRPCTask bool
}

// New creates a Session stamped with now as both ID and StartTime,
// matching §3's "session_id (monotonic, client-assigned)".
func New(hardwareID string, now time.Time) *Session {
	return &Session{
		ID:              now.UnixNano(),
		HardwareID:      hardwareID,
		StartTime:       now,
		RecordingActive: true,
	}
}

// SetText records the recognised text exactly once.
func (s *Session) SetText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recognised {
		return ErrAlreadySet
	}
	s.text = text
	s.recognised = true
	return nil
}

// Text returns the recognised text and whether it was ever set.
func (s *Session) Text() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.recognised
}

// SetScreenshotPath records the screenshot path exactly once.
func (s *Session) SetScreenshotPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screenshotSet {
		return ErrAlreadySet
	}
	s.screenshotPath = path
	s.screenshotSet = true
	return nil
}

// ScreenshotPath returns the screenshot path and whether it was ever set.
func (s *Session) ScreenshotPath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenshotPath, s.screenshotSet
}

// SetRecordingActive updates the recording flag (set false on stop()).
func (s *Session) SetRecordingActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecordingActive = active
}

// MarkRPCStarted returns false if an RPC is already in flight for this
// session (at most one in-flight RPC per session — duplicate scheduling
// is a no-op per §4.7).
func (s *Session) MarkRPCStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRPCTask {
		return false
	}
	s.activeRPCTask = true
	return true
}

// MarkRPCFinished clears the in-flight RPC flag.
func (s *Session) MarkRPCFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRPCTask = false
}

// Matches reports whether an event's carried session_id matches this
// session. Consumers MUST ignore events whose session_id does not match
// the currently tracked session (§4.3).
func (s *Session) Matches(sessionID int64) bool {
	return s.ID == sessionID
}
