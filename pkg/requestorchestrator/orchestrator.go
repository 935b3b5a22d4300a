// Package requestorchestrator implements the RequestOrchestrator
// described in §4.8: the per-stream pipeline that reads one inbound
// request, drives StreamingWorkflow, relays its items as outbound
// protocol messages, and enforces the one-active-request-per-
// hardware_id fairness rule.
package requestorchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haloassist/halo/pkg/interrupt"
	"github.com/haloassist/halo/pkg/memory"
	"github.com/haloassist/halo/pkg/streamworkflow"
	"github.com/haloassist/halo/pkg/telemetry/logger"
	"github.com/haloassist/halo/pkg/telemetry/metrics"
	"github.com/haloassist/halo/pkg/wire"
)

// Orchestrator drives one bidi stream end to end. A single Orchestrator
// value is shared across all concurrent streams on a server; its
// mutex-protected active map is the only state two concurrent Handle
// calls can touch.
type Orchestrator struct {
	workflow *streamworkflow.Workflow
	registry interrupt.Registry
	mem      *memory.Coordinator
	text     streamworkflow.TextProvider
	tts      streamworkflow.SpeechSynthesiser
	log      logger.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc // hardware_id -> cancel of its in-flight request
}

// New constructs an Orchestrator. mem may be nil to run without any
// memory context (the read path then always yields no block and the
// write path is skipped).
func New(workflow *streamworkflow.Workflow, registry interrupt.Registry, mem *memory.Coordinator, text streamworkflow.TextProvider, tts streamworkflow.SpeechSynthesiser, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop{}
	}
	return &Orchestrator{
		workflow: workflow,
		registry: registry,
		mem:      mem,
		text:     text,
		tts:      tts,
		log:      log,
		active:   make(map[string]context.CancelFunc),
	}
}

// Handle runs the full per-request pipeline of §4.8 over one bidi
// stream. It returns once the terminal outbound message has been
// written and the session unregistered.
func (o *Orchestrator) Handle(ctx context.Context, stream wire.Stream) error {
	req, err := stream.RecvRequest()
	if err != nil {
		return fmt.Errorf("requestorchestrator: recv request: %w", err)
	}
	if req.HardwareID == "" {
		return fmt.Errorf("requestorchestrator: request missing hardware_id")
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.takeOver(req.HardwareID, cancel)
	defer o.release(req.HardwareID)

	metrics.SessionStarted()
	start := time.Now()

	prompt := o.buildPrompt(reqCtx, req)
	screenshot := decodeScreenshot(req.ScreenshotBase64)

	finalText, status := o.drive(reqCtx, stream, req, prompt, screenshot)

	metrics.SessionEnded(status, time.Since(start).Seconds())

	if o.mem != nil {
		go o.mem.Distil(context.Background(), req.HardwareID, req.Prompt, finalText)
	}

	_ = o.registry.Clear(context.Background(), req.HardwareID)
	return nil
}

// takeOver enforces the fairness rule: a second request for a
// hardware_id that already has one active interrupts the first by
// marking it in the InterruptRegistry and cancelling its context, then
// installs itself as the new active request.
func (o *Orchestrator) takeOver(hardwareID string, cancel context.CancelFunc) {
	o.mu.Lock()
	if prevCancel, ok := o.active[hardwareID]; ok {
		_ = o.registry.Mark(context.Background(), hardwareID)
		prevCancel()
	}
	o.active[hardwareID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) release(hardwareID string) {
	o.mu.Lock()
	delete(o.active, hardwareID)
	o.mu.Unlock()
}

func (o *Orchestrator) buildPrompt(ctx context.Context, req *wire.Request) string {
	if o.mem == nil {
		return req.Prompt
	}
	block := o.mem.ContextBlock(ctx, req.HardwareID)
	if block == "" {
		metrics.RecordMemoryOperation("read", "empty")
		return req.Prompt
	}
	metrics.RecordMemoryOperation("read", "ok")
	return block + "\n\n" + req.Prompt
}

// drive runs steps 3-5 of §4.8: process the request through
// StreamingWorkflow, relay every item as an outbound message, and stop
// as soon as the hardware_id is observed marked in the
// InterruptRegistry. It returns the concatenation of every emitted
// sentence (for the memory write path) and a status label for metrics.
func (o *Orchestrator) drive(ctx context.Context, stream wire.Stream, req *wire.Request, prompt string, screenshot []byte) (finalText string, status string) {
	items := o.workflow.Process(ctx, prompt, screenshot, o.text, o.tts)

	var sentences []string
	var workflowErr error

	for item := range items {
		switch item.Kind {
		case streamworkflow.KindText:
			sentences = append(sentences, item.Text)
			if err := stream.Send(wire.NewTextChunk(item.Text)); err != nil {
				o.log.Warn("send text chunk failed", "hardware_id", req.HardwareID, "err", err)
				return strings.Join(sentences, " "), "error"
			}
		case streamworkflow.KindAudio:
			if err := stream.Send(wire.NewAudioChunk(wire.DtypeInt16, nil, item.AudioData)); err != nil {
				o.log.Warn("send audio chunk failed", "hardware_id", req.HardwareID, "err", err)
				return strings.Join(sentences, " "), "error"
			}
		case streamworkflow.KindFinal:
			workflowErr = item.Final.Err
		}

		marked, err := o.registry.IsMarked(ctx, req.HardwareID)
		if err != nil {
			o.log.Warn("interrupt registry check failed", "hardware_id", req.HardwareID, "err", err)
		}
		if marked {
			_ = stream.Send(wire.NewEndMessage("interrupted"))
			return strings.Join(sentences, " "), "interrupted"
		}
	}

	finalText = strings.Join(sentences, " ")
	if workflowErr != nil {
		_ = stream.Send(wire.NewErrorMessage(workflowErr.Error()))
		return finalText, "error"
	}
	_ = stream.Send(wire.NewEndMessage(""))
	return finalText, "success"
}

func decodeScreenshot(b64 string) []byte {
	if b64 == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return data
}
