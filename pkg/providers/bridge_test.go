package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/haloassist/halo/pkg/orchestrator"
)

type fakeLLM struct {
	text string
	err  error
}

func (f *fakeLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	return f.text, f.err
}
func (f *fakeLLM) Name() string { return "fake-llm" }

type fakeTTS struct {
	data []byte
	err  error
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	return f.data, f.err
}
func (f *fakeTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	if f.err != nil {
		return f.err
	}
	return onChunk(f.data)
}
func (f *fakeTTS) Name() string { return "fake-tts" }

func TestTextModelAdapterReplaysWordsThenDone(t *testing.T) {
	a := &TextModelAdapter{LLM: &fakeLLM{text: "hello there friend"}}
	ch := a.StreamText(context.Background(), "hi", nil)

	var words []string
	for frag := range ch {
		if frag.Done {
			break
		}
		words = append(words, frag.Text)
	}
	if len(words) != 3 {
		t.Fatalf("got %v, want 3 words", words)
	}
}

func TestTextModelAdapterPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	a := &TextModelAdapter{LLM: &fakeLLM{err: boom}}
	ch := a.StreamText(context.Background(), "hi", nil)

	frag := <-ch
	if !frag.Done || frag.Err != boom {
		t.Fatalf("got %+v, want a terminal error fragment", frag)
	}
}

func TestSpeechAdapterStreamsChunkThenDone(t *testing.T) {
	a := &SpeechAdapter{TTS: &fakeTTS{data: []byte("pcm")}}
	ch := a.Synthesize(context.Background(), "hello")

	var chunks [][]byte
	var sawDone bool
	for c := range ch {
		if c.Done {
			sawDone = true
			if c.Err != nil {
				t.Fatalf("unexpected error: %v", c.Err)
			}
			continue
		}
		chunks = append(chunks, c.Data)
	}
	if !sawDone || len(chunks) != 1 || string(chunks[0]) != "pcm" {
		t.Fatalf("got chunks=%v sawDone=%v", chunks, sawDone)
	}
}
