package requestorchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/haloassist/halo/pkg/interrupt"
	"github.com/haloassist/halo/pkg/streamworkflow"
	"github.com/haloassist/halo/pkg/wire"
)

type fakeStream struct {
	req  *wire.Request
	sent []wire.Outbound
	mu   sync.Mutex
}

func (s *fakeStream) Context() context.Context { return context.Background() }

func (s *fakeStream) RecvRequest() (*wire.Request, error) {
	return s.req, nil
}

func (s *fakeStream) Send(out wire.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, out)
	return nil
}

func (s *fakeStream) kinds() []wire.OutboundKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ks []wire.OutboundKind
	for _, o := range s.sent {
		ks = append(ks, o.Kind)
	}
	return ks
}

type fakeTextProvider struct {
	fragments []string
}

func (f fakeTextProvider) StreamText(ctx context.Context, prompt string, screenshot []byte) <-chan streamworkflow.TextFragment {
	out := make(chan streamworkflow.TextFragment)
	go func() {
		defer close(out)
		for _, frag := range f.fragments {
			out <- streamworkflow.TextFragment{Text: frag}
		}
		out <- streamworkflow.TextFragment{Done: true}
	}()
	return out
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(ctx context.Context, text string) <-chan streamworkflow.AudioChunk {
	out := make(chan streamworkflow.AudioChunk, 2)
	out <- streamworkflow.AudioChunk{Data: []byte{1}}
	out <- streamworkflow.AudioChunk{Done: true}
	close(out)
	return out
}

func newTestOrchestrator(text streamworkflow.TextProvider) (*Orchestrator, *interrupt.MemoryRegistry) {
	wf := streamworkflow.New(streamworkflow.DefaultThresholds(), nil, nil)
	reg := interrupt.NewMemoryRegistry(0)
	o := New(wf, reg, nil, text, fakeTTS{}, nil)
	return o, reg
}

func TestHandleEndsWithSuccess(t *testing.T) {
	o, _ := newTestOrchestrator(fakeTextProvider{fragments: []string{"Hello there, this is a full sentence. "}})
	stream := &fakeStream{req: &wire.Request{HardwareID: "hw-1", Prompt: "hi"}}

	if err := o.Handle(context.Background(), stream); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	kinds := stream.kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != wire.KindEndMessage {
		t.Fatalf("got kinds %v, want last item end_message", kinds)
	}
}

func TestHandleRejectsMissingHardwareID(t *testing.T) {
	o, _ := newTestOrchestrator(fakeTextProvider{fragments: []string{"hi"}})
	stream := &fakeStream{req: &wire.Request{Prompt: "hi"}}

	if err := o.Handle(context.Background(), stream); err == nil {
		t.Fatal("expected error for missing hardware_id")
	}
}

func TestHandleStopsOnInterruptMark(t *testing.T) {
	o, reg := newTestOrchestrator(fakeTextProvider{fragments: []string{
		"First sentence long enough to emit. ", "Second sentence long enough to emit too.",
	}})
	stream := &fakeStream{req: &wire.Request{HardwareID: "hw-1", Prompt: "hi"}}

	_ = reg.Mark(context.Background(), "hw-1")

	if err := o.Handle(context.Background(), stream); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The first item (the already-buffered first sentence's text chunk) is
	// still written before the mark is consulted; the break happens right
	// after, so neither its audio nor the second sentence's text is sent.
	kinds := stream.kinds()
	if len(kinds) != 2 || kinds[0] != wire.KindTextChunk || kinds[1] != wire.KindEndMessage {
		t.Fatalf("got kinds %v, want [text_chunk, end_message]", kinds)
	}
}

func TestTakeOverCancelsPreviousRequest(t *testing.T) {
	o, _ := newTestOrchestrator(fakeTextProvider{fragments: []string{"hi"}})

	var firstCancelled bool
	firstCtx, cancel := context.WithCancel(context.Background())
	o.takeOver("hw-1", cancel)

	var secondCancel context.CancelFunc
	_, secondCancel = context.WithCancel(context.Background())
	o.takeOver("hw-1", secondCancel)

	select {
	case <-firstCtx.Done():
		firstCancelled = true
	default:
	}
	if !firstCancelled {
		t.Fatal("expected the first request's context to be cancelled when a second arrives for the same hardware_id")
	}
}

type erroringStream struct {
	req *wire.Request
}

func (s *erroringStream) Context() context.Context            { return context.Background() }
func (s *erroringStream) RecvRequest() (*wire.Request, error) { return s.req, nil }
func (s *erroringStream) Send(out wire.Outbound) error         { return errors.New("broken pipe") }

func TestHandleStopsDrivingOnSendError(t *testing.T) {
	o, _ := newTestOrchestrator(fakeTextProvider{fragments: []string{"First sentence long enough to emit. "}})
	stream := &erroringStream{req: &wire.Request{HardwareID: "hw-1", Prompt: "hi"}}

	if err := o.Handle(context.Background(), stream); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}
