// Package grpcclient implements the client's GrpcClient adapter (§4.7):
// aggregate a recognised-text-plus-optional-screenshot request per
// session, open one bidirectional StreamAudio call, and translate the
// server's tagged-union responses back onto the EventBus.
package grpcclient

import (
	"context"
	"encoding/base64"
	"io"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/haloassist/halo/pkg/eventbus"
	"github.com/haloassist/halo/pkg/session"
	"github.com/haloassist/halo/pkg/telemetry/logger"
	"github.com/haloassist/halo/pkg/telemetry/metrics"
	"github.com/haloassist/halo/pkg/wire"
)

// DefaultAggregateTimeout is §4.7's "default 1.5s" screenshot wait.
const DefaultAggregateTimeout = 1500 * time.Millisecond

// pending tracks one session's in-flight request aggregation.
type pending struct {
	sess             *session.Session
	screenshotB64    string
	screenWidth      int
	screenHeight     int
	screenshotIsSet  bool
	timer            *time.Timer
	cancel           context.CancelFunc
	sent             bool
}

// Client implements the GrpcClient adapter.
type Client struct {
	bus              *eventbus.Bus
	log              logger.Logger
	addr             string
	aggregateTimeout time.Duration
	useNetworkGate   bool

	connMu sync.Mutex
	conn   *grpc.ClientConn

	mu      sync.Mutex
	offline bool
	pend    map[int64]*pending
}

// Option configures a Client at construction.
type Option func(*Client)

// WithAggregateTimeout overrides DefaultAggregateTimeout.
func WithAggregateTimeout(d time.Duration) Option {
	return func(c *Client) { c.aggregateTimeout = d }
}

// WithNetworkGate enables/disables the network.status_changed gate.
func WithNetworkGate(enabled bool) Option {
	return func(c *Client) { c.useNetworkGate = enabled }
}

// New wires a Client to bus, subscribing to every event it aggregates
// or gates on. addr is the server's dial target.
func New(bus *eventbus.Bus, log logger.Logger, addr string, opts ...Option) *Client {
	if log == nil {
		log = logger.Nop{}
	}
	c := &Client{
		bus:              bus,
		log:              log,
		addr:             addr,
		aggregateTimeout: DefaultAggregateTimeout,
		pend:             make(map[int64]*pending),
	}
	for _, opt := range opts {
		opt(c)
	}

	bus.Subscribe("voice.recognition_completed", eventbus.HIGH, c.onRecognitionCompleted)
	bus.Subscribe("screenshot.captured", eventbus.HIGH, c.onScreenshotCaptured)
	bus.Subscribe("network.status_changed", eventbus.MEDIUM, c.onNetworkStatusChanged)
	bus.Subscribe("interrupt.request", eventbus.CRITICAL, c.onInterrupt)
	return c
}

// Close tears down the dialled connection, if any.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) onNetworkStatusChanged(ev eventbus.Event) {
	data, _ := ev.Payload.(map[string]any)
	newStatus, _ := data["new"].(string)
	c.mu.Lock()
	c.offline = newStatus == "disconnected"
	c.mu.Unlock()
}

func (c *Client) onRecognitionCompleted(ev eventbus.Event) {
	data, _ := ev.Payload.(map[string]any)
	sessionID, _ := data["session_id"].(int64)
	hardwareID, _ := data["hardware_id"].(string)
	text, _ := data["text"].(string)
	if text == "" {
		return
	}

	c.mu.Lock()
	p, ok := c.pend[sessionID]
	if !ok {
		p = &pending{sess: session.New(hardwareID, time.Now())}
		p.sess.ID = sessionID
		c.pend[sessionID] = p
	}
	_ = p.sess.SetText(text)
	ready := p.screenshotIsSet || (c.useNetworkGate && c.offline)
	if !ready && p.timer == nil {
		p.timer = time.AfterFunc(c.aggregateTimeout, func() { c.fire(sessionID) })
	}
	c.mu.Unlock()

	if ready {
		c.fire(sessionID)
	}
}

func (c *Client) onScreenshotCaptured(ev eventbus.Event) {
	data, _ := ev.Payload.(map[string]any)
	sessionID, _ := data["session_id"].(int64)
	path, _ := data["image_path"].(string)
	width, _ := data["width"].(int)
	height, _ := data["height"].(int)

	c.mu.Lock()
	p, ok := c.pend[sessionID]
	if !ok {
		p = &pending{}
		c.pend[sessionID] = p
	}
	p.screenshotB64 = encodeScreenshot(path)
	p.screenWidth = width
	p.screenHeight = height
	p.screenshotIsSet = true
	textReady := p.sess != nil
	if textReady {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	c.mu.Unlock()

	if textReady {
		c.fire(sessionID)
	}
}

// encodeScreenshot reads the JPEG at path and base64-encodes it, per
// §4.8's {screenshot (base64 JPEG)} request field.
func encodeScreenshot(path string) string {
	if path == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func (c *Client) onInterrupt(ev eventbus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pend {
		if p.cancel != nil {
			p.cancel()
		}
	}
}

// fire sends the aggregated request for sessionID, if not already sent.
func (c *Client) fire(sessionID int64) {
	c.mu.Lock()
	p, ok := c.pend[sessionID]
	if !ok || p.sent || p.sess == nil {
		c.mu.Unlock()
		return
	}
	text, hasText := p.sess.Text()
	if !hasText {
		c.mu.Unlock()
		return
	}
	if !p.sess.MarkRPCStarted() {
		c.mu.Unlock()
		return
	}
	p.sent = true
	c.mu.Unlock()

	c.mu.Lock()
	offline := c.offline
	c.mu.Unlock()
	if c.useNetworkGate && offline {
		c.publishFailed(sessionID, "offline")
		return
	}

	req := &wire.Request{
		Prompt:           text,
		HardwareID:       p.sess.HardwareID,
		ScreenshotBase64: p.screenshotB64,
	}
	if p.screenWidth > 0 && p.screenHeight > 0 {
		req.ScreenInfo = &wire.ScreenInfo{Width: p.screenWidth, Height: p.screenHeight}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	p.cancel = cancel
	c.mu.Unlock()

	go c.drive(ctx, sessionID, req)
}

// drive opens the bidi stream, sends req, and relays every response
// until io.EOF or a transport/processing failure, per §4.7.
func (c *Client) drive(ctx context.Context, sessionID int64, req *wire.Request) {
	start := time.Now()
	defer func() {
		c.mu.Lock()
		delete(c.pend, sessionID)
		c.mu.Unlock()
	}()

	conn, err := c.connect()
	if err != nil {
		c.publishFailed(sessionID, "connect_failed")
		metrics.RecordProviderRequest("grpc", "halo-server", "error", time.Since(start).Seconds())
		return
	}

	stream, err := wire.OpenClientStream(ctx, conn)
	if err != nil {
		c.publishFailed(sessionID, "connect_failed")
		return
	}
	if err := stream.SendRequest(req); err != nil {
		c.publishFailed(sessionID, "transport_error")
		return
	}

	c.bus.Publish("grpc.request_started", map[string]any{"session_id": sessionID}, eventbus.HIGH)

	for {
		out, err := stream.Recv()
		if err == io.EOF {
			c.bus.Publish("grpc.request_completed", map[string]any{"session_id": sessionID}, eventbus.HIGH)
			metrics.RecordProviderRequest("grpc", "halo-server", "success", time.Since(start).Seconds())
			return
		}
		if err != nil {
			kind := "transport_error"
			if ctx.Err() == context.Canceled {
				kind = "cancelled"
			}
			c.publishFailed(sessionID, kind)
			metrics.RecordProviderRequest("grpc", "halo-server", "error", time.Since(start).Seconds())
			return
		}

		switch out.Kind {
		case wire.KindTextChunk:
			c.bus.Publish("grpc.response.text", map[string]any{"session_id": sessionID, "text": out.TextChunk}, eventbus.HIGH)
		case wire.KindAudioChunk:
			c.bus.Publish("grpc.response.audio", map[string]any{
				"session_id": sessionID,
				"dtype":      out.AudioChunk.Dtype.String(),
				"shape":      out.AudioChunk.Shape,
				"audio_data": out.AudioChunk.AudioData,
			}, eventbus.HIGH)
		case wire.KindEndMessage:
			c.bus.Publish("grpc.request_completed", map[string]any{"session_id": sessionID}, eventbus.HIGH)
			metrics.RecordProviderRequest("grpc", "halo-server", "success", time.Since(start).Seconds())
			return
		case wire.KindErrorMessage:
			c.publishFailed(sessionID, out.ErrorMessage)
			metrics.RecordProviderRequest("grpc", "halo-server", "error", time.Since(start).Seconds())
			return
		}
	}
}

func (c *Client) publishFailed(sessionID int64, errKind string) {
	c.bus.Publish("grpc.request_failed", map[string]any{"session_id": sessionID, "error": errKind}, eventbus.HIGH)
}

// connect lazily dials the server on first use; connection errors are
// not retried within a session, per §4.7.
func (c *Client) connect() (*grpc.ClientConn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := grpc.NewClient(c.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}
