// Package providers bridges the teacher's non-streaming LLMProvider/
// TTSProvider/STTProvider collaborators (pkg/orchestrator/types.go) onto
// the capability interfaces StreamingWorkflow (pkg/streamworkflow) and
// SpeechRecogniser (pkg/speechrecogniser) expect, so the concrete
// providers under llm/, stt/, and tts/ plug into those pipelines
// unchanged.
package providers

import (
	"context"
	"strings"

	"github.com/haloassist/halo/pkg/orchestrator"
	"github.com/haloassist/halo/pkg/streamworkflow"
)

// TextModelAdapter turns a non-streaming LLMProvider into a
// streamworkflow.TextProvider by issuing one Complete call and
// replaying its result as a sequence of word fragments, so the
// sentence aggregator still sees per-token-shaped input even though the
// underlying provider returns its answer in one shot.
type TextModelAdapter struct {
	LLM    orchestrator.LLMProvider
	Prompt string // system prompt prefix, if any
}

// StreamText implements streamworkflow.TextProvider.
func (a *TextModelAdapter) StreamText(ctx context.Context, prompt string, screenshot []byte) <-chan streamworkflow.TextFragment {
	out := make(chan streamworkflow.TextFragment)
	go func() {
		defer close(out)

		messages := []orchestrator.Message{{Role: "user", Content: prompt}}
		if a.Prompt != "" {
			messages = append([]orchestrator.Message{{Role: "system", Content: a.Prompt}}, messages...)
		}

		text, err := a.LLM.Complete(ctx, messages)
		if err != nil {
			select {
			case out <- streamworkflow.TextFragment{Done: true, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		for _, word := range strings.Fields(text) {
			select {
			case out <- streamworkflow.TextFragment{Text: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- streamworkflow.TextFragment{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out
}

// SpeechAdapter turns a TTSProvider into a streamworkflow.SpeechSynthesiser,
// preferring StreamSynthesize when the provider supports it (chunked
// delivery, matching §4.9's "TTS invoked per sentence" pipeline) and
// falling back to the whole-buffer Synthesize otherwise.
type SpeechAdapter struct {
	TTS      orchestrator.TTSProvider
	Voice    orchestrator.Voice
	Language orchestrator.Language
}

type streamingTTS interface {
	StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error
}

// Synthesize implements streamworkflow.SpeechSynthesiser.
func (a *SpeechAdapter) Synthesize(ctx context.Context, text string) <-chan streamworkflow.AudioChunk {
	out := make(chan streamworkflow.AudioChunk)
	voice := a.Voice
	if voice == "" {
		voice = orchestrator.VoiceF1
	}
	lang := a.Language
	if lang == "" {
		lang = orchestrator.LanguageEn
	}

	go func() {
		defer close(out)

		if streaming, ok := a.TTS.(streamingTTS); ok {
			err := streaming.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
				select {
				case out <- streamworkflow.AudioChunk{Data: chunk}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			final := streamworkflow.AudioChunk{Done: true, Err: err}
			select {
			case out <- final:
			case <-ctx.Done():
			}
			return
		}

		data, err := a.TTS.Synthesize(ctx, text, voice, lang)
		if err != nil {
			select {
			case out <- streamworkflow.AudioChunk{Done: true, Err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- streamworkflow.AudioChunk{Data: data}:
		case <-ctx.Done():
			return
		}
		select {
		case out <- streamworkflow.AudioChunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return out
}
