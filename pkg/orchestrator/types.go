// Package orchestrator holds the provider vocabulary shared by the LLM,
// STT, and TTS adapters under pkg/providers: the interfaces those
// adapters implement, and the Message/Voice/Language value types that
// flow between them and pkg/providers/bridge.go.
package orchestrator

import "context"

// STTProvider transcribes one fully-buffered audio capture, matching
// the non-streaming speech-to-text adapters under pkg/providers/stt.
type STTProvider interface {
	Transcribe(ctx context.Context, audio []byte, lang Language) (string, error)
	Name() string
}

// StreamingSTTProvider additionally accepts incremental audio over a
// channel, for providers (deepgram) that support it.
type StreamingSTTProvider interface {
	STTProvider
	StreamTranscribe(ctx context.Context, lang Language, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error)
}

// LLMProvider completes a chat-style message history in one round trip.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// TTSProvider synthesizes speech either as one buffer or, where
// supported, as a sequence of chunks delivered to onChunk.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	Name() string
}

// Voice selects a TTS voice preset.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceF4 Voice = "F4"
	VoiceF5 Voice = "F5"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
	VoiceM4 Voice = "M4"
	VoiceM5 Voice = "M5"
)

// Language is an ISO-639-1 language code accepted by STT/LLM/TTS providers.
type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
)

// Message is one turn in a chat-style history passed to LLMProvider.Complete.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
