// Package streamworkflow implements the sentence aggregator described
// in §4.9 as "the hard heart": a pure transducer from a lazy sequence of
// text fragments (as produced token-by-token by a streaming text model)
// to a lazy, ordered sequence of text/audio/final items, invoking a
// text-to-speech adapter once per emitted sentence rather than once per
// token, with strict ordering and content dedup.
//
// Grounded on original_source's streaming_workflow_integration.py: the
// buffering, threshold, and dedup logic below is the same algorithm,
// re-expressed as channels instead of an async generator.
package streamworkflow

import (
	"context"
	"crypto/sha256"
	"strings"
	"unicode"

	"github.com/haloassist/halo/pkg/telemetry/logger"
)

// TextFragment is one piece of model output, or a terminal error/EOF
// signal when Done is true.
type TextFragment struct {
	Text string
	Done bool
	Err  error
}

// TextProvider is the capability set a streaming text model adapter
// implements (spec §9's TextProvider capability).
type TextProvider interface {
	StreamText(ctx context.Context, prompt string, screenshot []byte) <-chan TextFragment
}

// AudioChunk is one piece of synthesized audio, or a terminal
// error/EOF signal when Done is true.
type AudioChunk struct {
	Data []byte
	Done bool
	Err  error
}

// SpeechSynthesiser is the capability set a TTS adapter implements
// (spec §9's SpeechSynthesiser capability). It is invoked once per
// emitted sentence, never once per token.
type SpeechSynthesiser interface {
	Synthesize(ctx context.Context, text string) <-chan AudioChunk
}

// TextFilter cleans raw model fragments and splits buffered text into
// complete sentences, matching the TextFilterManager collaborator named
// in §9's open questions. A default, stdlib-only implementation is
// provided by NewDefaultFilter; wiring a real NLP-backed filter is
// optional per §9 — skipping it lets more noise through but does not
// change the aggregator's correctness.
type TextFilter interface {
	Clean(fragment string) string
	SplitSentences(buffer string) (complete []string, remainder string)
	CountMeaningfulWords(text string) int
}

// Kind tags which variant an Item carries.
type Kind int

const (
	KindText Kind = iota
	KindAudio
	KindFinal
)

// FinalCounts is the aggregate counters carried by the terminating Final
// item.
type FinalCounts struct {
	Sentences   int
	AudioChunks int
	Err         error
}

// Item is one element of the workflow's lazy output sequence.
type Item struct {
	Kind          Kind
	SentenceIndex int // 1-based, strictly increasing, set for Text and Audio
	ChunkIndex    int // 1-based per sentence, set for Audio
	Text          string
	AudioData     []byte
	Final         *FinalCounts
}

// Thresholds are the STREAM_* knobs of §4.9.
type Thresholds struct {
	MinChars              int
	MinWords              int
	FirstSentenceMinWords int
	ForceFlushMaxChars    int
}

// DefaultThresholds returns the defaults named explicitly in §4.9.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinChars:              15,
		MinWords:              3,
		FirstSentenceMinWords: 2,
		ForceFlushMaxChars:    0,
	}
}

const endPunctuation = ".!?"

// Workflow is the sentence aggregator. A Workflow value holds no
// cross-call state of its own; all state for one Process call lives in
// that call's local variables, so the same Workflow can drive concurrent
// sessions safely.
type Workflow struct {
	thresholds Thresholds
	filter     TextFilter
	log        logger.Logger
}

// New constructs a Workflow. filter may be nil, in which case
// NewDefaultFilter() is used.
func New(thresholds Thresholds, filter TextFilter, log logger.Logger) *Workflow {
	if filter == nil {
		filter = NewDefaultFilter()
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Workflow{thresholds: thresholds, filter: filter, log: log}
}

// Process drives the end-to-end text->sentence->TTS pipeline for one
// request and returns the lazy output sequence as a channel, closed
// after the terminating Final item (or after an error aborts the
// workflow, per §4.9's failure semantics: a TTS or text-model failure
// aborts the whole workflow but earlier sentences remain valid).
func (w *Workflow) Process(ctx context.Context, prompt string, screenshot []byte, text TextProvider, tts SpeechSynthesiser) <-chan Item {
	out := make(chan Item)
	go w.run(ctx, prompt, screenshot, text, tts, out)
	return out
}

// state holds everything the algorithm mutates across fragments: R (raw
// buffer), P (pending segment), two dedup sets -- fragmentDedup guards R
// against a duplicate fragment arriving mid-sentence, dedup guards
// against a duplicate whole sentence at emit time -- and the emission
// counters.
type state struct {
	raw            string
	pending        string
	fragmentDedup  map[[32]byte]bool
	dedup          map[[32]byte]bool
	hasEmitted     bool
	sentenceIndex  int
	totalAudio     int
}

func newState() *state {
	return &state{fragmentDedup: make(map[[32]byte]bool), dedup: make(map[[32]byte]bool)}
}

func (w *Workflow) run(ctx context.Context, prompt string, screenshot []byte, text TextProvider, tts SpeechSynthesiser, out chan<- Item) {
	defer close(out)

	st := newState()
	fragments := text.StreamText(ctx, prompt, screenshot)

	for frag := range fragments {
		if frag.Err != nil {
			w.emitFinal(out, st, frag.Err)
			return
		}
		if frag.Done {
			break
		}
		if !w.ingestFragment(ctx, st, frag.Text, tts, out) {
			return
		}
	}

	if !w.flushRemainder(ctx, st, tts, out) {
		return
	}
	w.emitFinal(out, st, nil)
}

// ingestFragment implements steps 1-4 of §4.9's algorithm for a single
// incoming text fragment. Step 2 is the fragment-level dedup check: a
// cleaned fragment already seen is dropped here, before it ever reaches
// R, so a duplicate arriving mid-sentence (before any sentence-ending
// punctuation) cannot get silently concatenated into the eventual
// output sentence. It returns false if a TTS failure aborted the
// workflow (the caller must stop immediately; emitFinal has already run).
func (w *Workflow) ingestFragment(ctx context.Context, st *state, fragment string, tts SpeechSynthesiser, out chan<- Item) bool {
	cleaned := w.filter.Clean(fragment)
	if cleaned == "" {
		return true
	}
	if w.alreadyIngested(st, cleaned) {
		return true
	}

	if st.raw == "" || !needsJoiningSpace(cleaned) {
		st.raw = st.raw + cleaned
	} else {
		st.raw = st.raw + " " + cleaned
	}

	complete, remainder := w.filter.SplitSentences(st.raw)
	st.raw = remainder

	return w.drainSentences(ctx, st, complete, tts, out, false)
}

// drainSentences implements step 4 of §4.9 for a batch of newly
// completed sentences. When atEOF is true (the model has signalled
// end-of-text and this is the final drain of whatever remained in R),
// the emit thresholds are bypassed: there is no more text coming to
// grow a short trailing sentence, so any complete sentence still
// buffered is flushed rather than silently dropped.
func (w *Workflow) drainSentences(ctx context.Context, st *state, sentences []string, tts SpeechSynthesiser, out chan<- Item, atEOF bool) bool {
	for _, s := range sentences {
		candidate := s
		if st.pending != "" {
			candidate = st.pending + " " + s
		}

		if !atEOF && !w.meetsEmitThreshold(st, candidate) {
			st.pending = candidate
			continue
		}

		toEmit := strings.TrimSpace(candidate)
		st.pending = ""
		if w.alreadyEmitted(st, toEmit) {
			continue
		}

		st.hasEmitted = true
		st.sentenceIndex++

		if !w.emitSentence(ctx, st, toEmit, tts, out) {
			return false
		}
	}
	return true
}

// alreadyEmitted checks text against the dedup set D, marking it seen on
// the first occurrence. Short sentences are never hashed: a four-letter
// "Yes." is common enough to repeat legitimately in conversation.
func (w *Workflow) alreadyEmitted(st *state, text string) bool {
	if len(text) <= 10 {
		return false
	}
	h := contentHash(text)
	if st.dedup[h] {
		return true
	}
	st.dedup[h] = true
	return false
}

// alreadyIngested checks a cleaned fragment against fragmentDedup,
// marking it seen on the first occurrence. Short fragments are never
// hashed: a streaming model legitimately repeats short tokens ("the",
// "a", ".") far too often for that to mean a retransmitted duplicate.
func (w *Workflow) alreadyIngested(st *state, cleaned string) bool {
	if len(cleaned) <= 10 {
		return false
	}
	h := contentHash(cleaned)
	if st.fragmentDedup[h] {
		return true
	}
	st.fragmentDedup[h] = true
	return false
}

func (w *Workflow) meetsEmitThreshold(st *state, candidate string) bool {
	words := w.filter.CountMeaningfulWords(candidate)
	chars := len(candidate)
	if !st.hasEmitted {
		return words >= w.thresholds.FirstSentenceMinWords || chars >= w.thresholds.MinChars
	}
	return words >= w.thresholds.MinWords || chars >= w.thresholds.MinChars
}

// emitSentence publishes the text item for one sentence, then invokes
// TTS once for that sentence and relays every audio chunk, strictly
// ordered before any item of the next sentence.
func (w *Workflow) emitSentence(ctx context.Context, st *state, text string, tts SpeechSynthesiser, out chan<- Item) bool {
	idx := st.sentenceIndex

	select {
	case out <- Item{Kind: KindText, SentenceIndex: idx, Text: text}:
	case <-ctx.Done():
		return false
	}

	ttsText := text
	if !strings.ContainsAny(text[len(text)-1:], endPunctuation) {
		ttsText = text + "."
	}

	chunkIdx := 0
	for chunk := range tts.Synthesize(ctx, ttsText) {
		if chunk.Err != nil {
			w.log.Warn("tts failed mid-sentence", "sentence_index", idx, "err", chunk.Err)
			w.emitFinal(out, st, chunk.Err)
			return false
		}
		if chunk.Done {
			break
		}
		chunkIdx++
		st.totalAudio++
		select {
		case out <- Item{Kind: KindAudio, SentenceIndex: idx, ChunkIndex: chunkIdx, AudioData: chunk.Data}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// flushRemainder implements step 5 of §4.9: drain any complete
// sentences left in R, then force-flush a long pending segment if
// configured.
func (w *Workflow) flushRemainder(ctx context.Context, st *state, tts SpeechSynthesiser, out chan<- Item) bool {
	if st.raw != "" {
		complete, remainder := w.filter.SplitSentences(st.raw)
		st.raw = remainder
		if !w.drainSentences(ctx, st, complete, tts, out, true) {
			return false
		}
	}

	// Any text left in R never reached a sentence boundary at all; fold
	// it into the pending segment before deciding what to do with it,
	// so a force-flush can still surface it even if P was empty.
	if st.raw != "" {
		if st.pending == "" {
			st.pending = st.raw
		} else {
			st.pending = st.pending + " " + st.raw
		}
		st.raw = ""
	}

	if st.pending == "" {
		return true
	}

	// A pending segment that already ends in terminal punctuation was a
	// grammatically complete sentence that simply never grew past the
	// emit threshold while more text might still have arrived; now that
	// the model is done, nothing will make it grow further, so it is
	// flushed unconditionally rather than discarded.
	if strings.ContainsAny(st.pending[len(st.pending)-1:], endPunctuation) {
		toEmit := strings.TrimSpace(st.pending)
		st.pending = ""
		if w.alreadyEmitted(st, toEmit) {
			return true
		}
		st.hasEmitted = true
		st.sentenceIndex++
		return w.emitSentence(ctx, st, toEmit, tts, out)
	}

	if w.thresholds.ForceFlushMaxChars > 0 && len(st.pending) >= w.thresholds.ForceFlushMaxChars {
		toEmit := strings.TrimSpace(st.pending)
		st.pending = ""
		if w.alreadyEmitted(st, toEmit) {
			return true
		}
		st.hasEmitted = true
		st.sentenceIndex++
		if !w.emitSentence(ctx, st, toEmit, tts, out) {
			return false
		}
	}
	return true
}

func (w *Workflow) emitFinal(out chan<- Item, st *state, err error) {
	out <- Item{Kind: KindFinal, Final: &FinalCounts{Sentences: st.sentenceIndex, AudioChunks: st.totalAudio, Err: err}}
}

// noSpaceBeforeRunes are punctuation characters that, per common
// tokenizer behavior, attach directly to the preceding word with no
// joining space when a streaming model emits them as their own fragment.
const noSpaceBeforeRunes = ".,!?;:')]}\""

func needsJoiningSpace(cleaned string) bool {
	if cleaned == "" {
		return false
	}
	r := []rune(cleaned)[0]
	return !strings.ContainsRune(noSpaceBeforeRunes, r)
}

func contentHash(s string) [32]byte {
	return sha256.Sum256([]byte(strings.TrimSpace(s)))
}

// NewDefaultFilter returns a TextFilter with no external dependencies:
// it strips control characters and collapses whitespace for Clean,
// splits on end punctuation for SplitSentences, and counts
// alphanumeric-containing tokens for CountMeaningfulWords. Wiring a
// richer filter (spell-aware, markup-aware) is optional per §9.
func NewDefaultFilter() TextFilter { return defaultFilter{} }

type defaultFilter struct{}

func (defaultFilter) Clean(fragment string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range fragment {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// SplitSentences treats an end-punctuation rune as a sentence boundary
// only when it is the last rune in the buffer or is followed by
// whitespace — otherwise it is an in-word period such as in "main.py",
// "12.10", or "config.json", which must not be mistaken for a sentence
// end while more of the model's output is still streaming in.
func (defaultFilter) SplitSentences(buffer string) (complete []string, remainder string) {
	if buffer == "" {
		return nil, ""
	}
	runes := []rune(buffer)
	start := 0
	for i, r := range runes {
		if !strings.ContainsRune(endPunctuation, r) {
			continue
		}
		isLast := i == len(runes)-1
		followedBySpace := !isLast && unicode.IsSpace(runes[i+1])
		if isLast || followedBySpace {
			complete = append(complete, strings.TrimSpace(string(runes[start:i+1])))
			start = i + 1
		}
	}
	remainder = strings.TrimSpace(string(runes[start:]))
	return complete, remainder
}

func (defaultFilter) CountMeaningfulWords(text string) int {
	count := 0
	for _, w := range strings.Fields(text) {
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				count++
				break
			}
		}
	}
	return count
}
