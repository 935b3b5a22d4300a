package audio

import (
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/haloassist/halo/pkg/eventbus"
	"github.com/haloassist/halo/pkg/telemetry/logger"
)

// PlaybackRingCapacityBytes bounds the playback ring buffer; once full,
// the oldest bytes are dropped to keep up, per §4.6.
const PlaybackRingCapacityBytes = 1 << 20 // 1 MiB, about 32 s of 16 kHz 16-bit mono PCM (less once converted to the device format)

// abortDrainTimeout bounds Stop()'s synchronous drain.
const abortDrainTimeout = 200 * time.Millisecond

// candidateProfiles is the (channels, sample_rate) search order tried
// when opening the output device, per §4.6; nearest-neighbour rate
// conversion and channel duplication happen in Enqueue so every
// candidate can consume the same buffer format unchanged.
var candidateProfiles = []struct {
	channels   uint32
	sampleRate uint32
}{
	{2, 44100},
	{1, 44100},
	{2, 48000},
	{1, 16000},
}

// Playback implements AudioPlayback: a bounded ring buffer fed by
// enqueue, drained by the device callback.
type Playback struct {
	ctx *malgo.AllocatedContext
	bus *eventbus.Bus
	log logger.Logger

	mu         sync.Mutex
	ring       []byte
	dropCount  int
	device     *malgo.Device
	channels   uint32
	sampleRate uint32
	sourceRate uint32
}

// NewPlayback allocates the malgo context for one Playback's lifetime.
func NewPlayback(bus *eventbus.Bus, log logger.Logger) (*Playback, error) {
	if log == nil {
		log = logger.Nop{}
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &Playback{ctx: mctx, bus: bus, log: log, sourceRate: SampleRate}, nil
}

// Close releases the underlying malgo context.
func (p *Playback) Close() error {
	return p.ctx.Uninit()
}

// Enqueue appends chunk (mono 16-bit PCM at SampleRate) to the ring
// buffer, converting to the open device's channel count by duplication
// and to its sample rate by nearest-neighbour, per §4.6. If the buffer
// would exceed its bounded capacity, the oldest bytes are dropped.
func (p *Playback) Enqueue(chunk []byte) {
	p.mu.Lock()
	converted := p.convertLocked(chunk)
	p.ring = append(p.ring, converted...)
	dropped := false
	var total int
	if overflow := len(p.ring) - PlaybackRingCapacityBytes; overflow > 0 {
		p.ring = p.ring[overflow:]
		p.dropCount++
		dropped = true
		total = p.dropCount
	}
	p.mu.Unlock()

	if dropped {
		p.publish("playback.dropped", map[string]any{"drop_count": total})
	}
}

// convertLocked must be called with mu held; it resamples by
// nearest-neighbour and duplicates channels to match the currently
// open device's profile. With no device open yet it passes the chunk
// through unchanged.
func (p *Playback) convertLocked(chunk []byte) []byte {
	if p.device == nil || (p.channels == Channels && p.sampleRate == p.sourceRate) {
		return chunk
	}

	resampled := resampleNearest(chunk, p.sourceRate, p.sampleRate)
	if p.channels <= Channels {
		return resampled
	}
	return duplicateChannels(resampled, p.channels)
}

// resampleNearest converts 16-bit mono PCM from srcRate to dstRate by
// nearest-neighbour sample selection, per §4.6's "no high-quality
// resampling required".
func resampleNearest(pcm []byte, srcRate, dstRate uint32) []byte {
	if srcRate == 0 || dstRate == 0 || srcRate == dstRate {
		return pcm
	}
	srcSamples := len(pcm) / bytesPerSample
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstSamples*bytesPerSample)
	for i := 0; i < dstSamples; i++ {
		srcIdx := int(int64(i) * int64(srcRate) / int64(dstRate))
		if srcIdx >= srcSamples {
			srcIdx = srcSamples - 1
		}
		copy(out[i*bytesPerSample:], pcm[srcIdx*bytesPerSample:srcIdx*bytesPerSample+bytesPerSample])
	}
	return out
}

// duplicateChannels expands mono 16-bit PCM to n channels by repeating
// each sample, per §4.6.
func duplicateChannels(mono []byte, n uint32) []byte {
	samples := len(mono) / bytesPerSample
	out := make([]byte, samples*bytesPerSample*int(n))
	for i := 0; i < samples; i++ {
		frame := mono[i*bytesPerSample : i*bytesPerSample+bytesPerSample]
		for c := 0; c < int(n); c++ {
			off := (i*int(n) + c) * bytesPerSample
			copy(out[off:off+bytesPerSample], frame)
		}
	}
	return out
}

// Start acquires the system default output device against the
// candidate profile list, per §4.6.
func (p *Playback) Start() error {
	if err := p.openLocked(); err != nil {
		p.publish("playback.failed", err)
		return err
	}
	p.publish("playback.started", nil)
	return nil
}

// Reopen closes whatever output device is currently open and reacquires
// the system default against a fresh candidate list, per §4.6's "the
// playback MUST reopen the stream with a fresh candidate list" hot-swap
// rule. Already-buffered chunks are preserved in the ring, so nothing
// enqueued before the swap is lost; the gap between releaseDevice and
// the new device's first callback is the "short gap of silence (<=400
// ms)" the rule allows. Detecting *when* the default output device has
// changed is left to the caller: malgo/miniaudio does not expose a
// portable hot-plug notification callback, so there is no automatic
// trigger wired to this method in this tree.
func (p *Playback) Reopen() error {
	p.releaseDevice()
	if err := p.openLocked(); err != nil {
		p.publish("playback.failed", err)
		return err
	}
	p.publish("audio.device_switched", nil)
	return nil
}

// openLocked tries each candidate profile in order and leaves the first
// one that opens and starts as the active device.
func (p *Playback) openLocked() error {
	var lastErr error
	for _, cand := range candidateProfiles {
		cfg := malgo.DefaultDeviceConfig(malgo.Playback)
		cfg.Playback.Format = malgo.FormatS16
		cfg.Playback.Channels = cand.channels
		cfg.SampleRate = cand.sampleRate

		device, err := malgo.InitDevice(p.ctx.Context, cfg, malgo.DeviceCallbacks{
			Data: p.onSamples,
		})
		if err != nil {
			lastErr = err
			continue
		}

		p.mu.Lock()
		p.device = device
		p.channels = cand.channels
		p.sampleRate = cand.sampleRate
		p.mu.Unlock()

		if err := device.Start(); err != nil {
			device.Uninit()
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// onSamples is malgo's playback callback. It is wait-free on the common
// path: copy what is buffered, pad the rest with silence.
func (p *Playback) onSamples(output, _ []byte, _ uint32) {
	p.mu.Lock()
	n := copy(output, p.ring)
	p.ring = p.ring[n:]
	p.mu.Unlock()

	for i := n; i < len(output); i++ {
		output[i] = 0
	}
}

// Stop synchronously drains the buffer up to abortDrainTimeout, then
// releases the device, per §4.6.
func (p *Playback) Stop() {
	deadline := time.Now().Add(abortDrainTimeout)
	for {
		p.mu.Lock()
		empty := len(p.ring) == 0
		p.mu.Unlock()
		if empty || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	p.releaseDevice()
	p.publish("playback.completed", nil)
}

// Abort immediately empties the buffer and stops the device, per §4.6.
func (p *Playback) Abort(reason string) {
	p.mu.Lock()
	p.ring = nil
	p.mu.Unlock()
	p.releaseDevice()
	p.publish("playback.cancelled", reason)
}

func (p *Playback) releaseDevice() {
	p.mu.Lock()
	device := p.device
	p.device = nil
	p.mu.Unlock()
	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
}

// DropCount reports the cumulative number of overflow events published
// as playback.dropped since this Playback was constructed, for callers
// that want a synchronous read instead of subscribing to the bus.
func (p *Playback) DropCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropCount
}

func (p *Playback) publish(name string, payload any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(name, payload, eventbus.MEDIUM)
}
