package streamworkflow

import (
	"context"
	"strings"
	"testing"
)

// fakeTextProvider streams a fixed list of fragments then signals Done.
type fakeTextProvider struct {
	fragments []string
}

func (f fakeTextProvider) StreamText(ctx context.Context, prompt string, screenshot []byte) <-chan TextFragment {
	out := make(chan TextFragment)
	go func() {
		defer close(out)
		for _, frag := range f.fragments {
			out <- TextFragment{Text: frag}
		}
		out <- TextFragment{Done: true}
	}()
	return out
}

// fakeTTS returns a fixed number of chunks per call, recording every
// text it was asked to synthesize.
type fakeTTS struct {
	chunksPerCall int
	calls         *[]string
}

func (f fakeTTS) Synthesize(ctx context.Context, text string) <-chan AudioChunk {
	if f.calls != nil {
		*f.calls = append(*f.calls, text)
	}
	out := make(chan AudioChunk)
	go func() {
		defer close(out)
		for i := 0; i < f.chunksPerCall; i++ {
			out <- AudioChunk{Data: []byte{byte(i)}}
		}
		out <- AudioChunk{Done: true}
	}()
	return out
}

func collect(ch <-chan Item) []Item {
	var items []Item
	for it := range ch {
		items = append(items, it)
	}
	return items
}

func TestRoundTripHelloPunctuated(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	tp := fakeTextProvider{fragments: []string{"Hello", "."}}
	tts := fakeTTS{chunksPerCall: 2}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	var texts []string
	var audioCount int
	for _, it := range items {
		switch it.Kind {
		case KindText:
			texts = append(texts, it.Text)
		case KindAudio:
			audioCount++
		}
	}

	if len(texts) != 1 || texts[0] != "Hello." {
		t.Fatalf("got texts %v, want exactly one \"Hello.\"", texts)
	}
	if audioCount < 1 {
		t.Fatal("expected at least one audio item")
	}
}

func TestBelowThresholdYieldsNothingByDefault(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	tp := fakeTextProvider{fragments: []string{"Hi"}}
	tts := fakeTTS{chunksPerCall: 1}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	for _, it := range items {
		if it.Kind == KindText {
			t.Fatalf("got unexpected text item %q, want none below threshold", it.Text)
		}
	}
}

func TestForceFlushEmitsBelowThresholdTail(t *testing.T) {
	th := DefaultThresholds()
	th.ForceFlushMaxChars = 2
	w := New(th, nil, nil)
	tp := fakeTextProvider{fragments: []string{"Hi"}}
	tts := fakeTTS{chunksPerCall: 1}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	var texts []string
	for _, it := range items {
		if it.Kind == KindText {
			texts = append(texts, it.Text)
		}
	}
	if len(texts) != 1 || texts[0] != "Hi" {
		t.Fatalf("got %v, want exactly one \"Hi\"", texts)
	}
}

func TestSentenceAggregationAcrossTokens(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	tp := fakeTextProvider{fragments: []string{
		"The ", "file ", "main", ".py ", "contains ", "version ", "12", ".10", ". ", "Check ", "config", ".json", ".",
	}}
	tts := fakeTTS{chunksPerCall: 1}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	var texts []string
	for _, it := range items {
		if it.Kind == KindText {
			texts = append(texts, it.Text)
		}
	}

	if len(texts) != 2 {
		t.Fatalf("got %d text items %v, want 2", len(texts), texts)
	}
	if texts[0] != "The file main.py contains version 12.10." {
		t.Fatalf("got first sentence %q", texts[0])
	}
	if texts[1] != "Check config.json." {
		t.Fatalf("got second sentence %q", texts[1])
	}

	final := items[len(items)-1]
	if final.Kind != KindFinal || final.Final.Sentences != 2 {
		t.Fatalf("got final %+v, want 2 sentences", final)
	}
}

func TestSentenceIndexStrictlyIncreasingFromOne(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	tp := fakeTextProvider{fragments: []string{"First sentence here. ", "Second sentence too. ", "Third one now."}}
	tts := fakeTTS{chunksPerCall: 1}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	expected := 1
	for _, it := range items {
		if it.Kind != KindText {
			continue
		}
		if it.SentenceIndex != expected {
			t.Fatalf("got sentence_index %d, want %d", it.SentenceIndex, expected)
		}
		expected++
	}
}

func TestAudioOrderedAfterItsTextAndBeforeNextText(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	tp := fakeTextProvider{fragments: []string{"First sentence here. ", "Second sentence too."}}
	tts := fakeTTS{chunksPerCall: 2}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	sawTextFor := map[int]bool{}
	lastChunk := map[int]int{}
	for _, it := range items {
		switch it.Kind {
		case KindText:
			sawTextFor[it.SentenceIndex] = true
		case KindAudio:
			if !sawTextFor[it.SentenceIndex] {
				t.Fatalf("audio for sentence %d observed before its text", it.SentenceIndex)
			}
			if it.ChunkIndex != lastChunk[it.SentenceIndex]+1 {
				t.Fatalf("chunk_index out of order for sentence %d: got %d", it.SentenceIndex, it.ChunkIndex)
			}
			lastChunk[it.SentenceIndex] = it.ChunkIndex
		}
	}
}

func TestDedupSuppressesRepeatedLongFragment(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	repeated := "This is a fairly long duplicated fragment. "
	tp := fakeTextProvider{fragments: []string{repeated, repeated}}
	tts := fakeTTS{chunksPerCall: 1}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	var texts []string
	for _, it := range items {
		if it.Kind == KindText {
			texts = append(texts, it.Text)
		}
	}
	if len(texts) != 1 {
		t.Fatalf("got %d text items, want 1 after dedup: %v", len(texts), texts)
	}
}

func TestDedupSuppressesRepeatedFragmentMidSentence(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	clause := "this is a fairly long duplicated clause "
	tp := fakeTextProvider{fragments: []string{clause, clause, "and it ends now."}}
	tts := fakeTTS{chunksPerCall: 1}

	items := collect(w.Process(context.Background(), "prompt", nil, tp, tts))

	var texts []string
	for _, it := range items {
		if it.Kind == KindText {
			texts = append(texts, it.Text)
		}
	}
	if len(texts) != 1 {
		t.Fatalf("got %d text items, want 1: %v", len(texts), texts)
	}
	if strings.Count(texts[0], "duplicated clause") != 1 {
		t.Fatalf("fragment-level dedup failed, sentence repeats the clause: %q", texts[0])
	}
}

func TestTTSFailureAbortsWorkflowButKeepsEarlierSentences(t *testing.T) {
	w := New(DefaultThresholds(), nil, nil)
	tp := fakeTextProvider{fragments: []string{"First sentence here. ", "Second sentence too."}}

	calls := 0
	failingTTS := ttsFunc(func(ctx context.Context, text string) <-chan AudioChunk {
		out := make(chan AudioChunk, 1)
		calls++
		if calls == 1 {
			out <- AudioChunk{Data: []byte{1}}
			close(out)
			return out
		}
		out <- AudioChunk{Err: context.DeadlineExceeded}
		close(out)
		return out
	})

	items := collect(w.Process(context.Background(), "prompt", nil, tp, failingTTS))

	var texts []string
	var finalErr error
	for _, it := range items {
		if it.Kind == KindText {
			texts = append(texts, it.Text)
		}
		if it.Kind == KindFinal {
			finalErr = it.Final.Err
		}
	}
	if len(texts) != 2 {
		t.Fatalf("got %d text items %v, want 2: the failing sentence's text item is published before its TTS call per step 4d", len(texts), texts)
	}
	if finalErr == nil {
		t.Fatal("expected final item to carry the TTS error")
	}
}

type ttsFunc func(ctx context.Context, text string) <-chan AudioChunk

func (f ttsFunc) Synthesize(ctx context.Context, text string) <-chan AudioChunk { return f(ctx, text) }
