// Package speechrecogniser implements the client's SpeechRecogniser
// adapter (§4.5): turn a PCM buffer into text via an external
// transcription provider, tolerant to partial failure and language
// fallback, grounded on the teacher's pkg/providers/stt client shapes.
package speechrecogniser

import (
	"context"
	"errors"
	"time"

	"github.com/haloassist/halo/pkg/orchestrator"
)

// ErrorKind enumerates the terminal outcomes named in §4.5.
type ErrorKind string

const (
	NoSpeech     ErrorKind = "no_speech"
	ServiceError ErrorKind = "service_error"
	Timeout      ErrorKind = "timeout"
)

// DefaultTimeout is §4.5's 10s default per-attempt budget.
const DefaultTimeout = 10 * time.Second

// Result is the successful outcome of Recognise.
type Result struct {
	Text       string
	Confidence float64
	Language   orchestrator.Language
}

// Error carries one of the ErrorKind values back to the caller.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider is the external transcription collaborator, matching the
// teacher's orchestrator.STTProvider contract.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language) (string, error)
	Name() string
}

// Recogniser implements the SpeechRecogniser adapter over a Provider.
type Recogniser struct {
	provider Provider
	timeout  time.Duration
}

// New wraps provider with §4.5's retry/fallback and timeout behaviour.
func New(provider Provider) *Recogniser {
	return &Recogniser{provider: provider, timeout: DefaultTimeout}
}

// WithTimeout overrides the default 10s per-attempt budget.
func (r *Recogniser) WithTimeout(d time.Duration) *Recogniser {
	r.timeout = d
	return r
}

// Recognise tries languages in order until one produces non-empty text,
// per §4.5. The last attempt's error is returned if all fail; a context
// deadline on any single attempt is reported as Timeout regardless of
// its position in the language list.
func (r *Recogniser) Recognise(ctx context.Context, pcm []byte, languages []orchestrator.Language) (Result, error) {
	if len(pcm) == 0 {
		return Result{}, &Error{Kind: NoSpeech, Err: orchestrator.ErrEmptyTranscription}
	}
	if len(languages) == 0 {
		languages = []orchestrator.Language{orchestrator.LanguageEn}
	}

	var lastErr error
	for _, lang := range languages {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		text, err := r.provider.Transcribe(attemptCtx, pcm, lang)
		cancel()

		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				lastErr = &Error{Kind: Timeout, Err: err}
			} else {
				lastErr = &Error{Kind: ServiceError, Err: err}
			}
			continue
		}
		if text == "" {
			lastErr = &Error{Kind: NoSpeech, Err: orchestrator.ErrEmptyTranscription}
			continue
		}
		return Result{Text: text, Confidence: 1.0, Language: lang}, nil
	}

	if lastErr == nil {
		lastErr = &Error{Kind: NoSpeech, Err: orchestrator.ErrEmptyTranscription}
	}
	return Result{}, lastErr
}
