// Package audio implements the client's AudioCapture and AudioPlayback
// components (§4.4, §4.6) over github.com/gen2brain/malgo, the same
// miniaudio binding the teacher repo drives its duplex microphone/speaker
// loop with.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/haloassist/halo/pkg/telemetry/logger"
)

// SampleRate and Channels are the fixed capture format named in §4.4.
const (
	SampleRate     = 16000
	Channels       = 1
	bytesPerSample = 2 // 16-bit PCM
	maxChunkFrames = 1024

	// MinCaptureDuration is §4.4's "shorter than 0.5s is discarded" rule.
	MinCaptureDuration = 500 * time.Millisecond
)

// Sentinel error kinds named in §4.4.
var (
	ErrCaptureUnavailable     = errors.New("capture_unavailable")
	ErrCapturePermissionDenied = errors.New("capture_permission_denied")
)

// Profile names the Bluetooth profile whose candidate sample-rate list
// opened the capture device. It is not detected from the device's
// reported channel count or sample rate.
type Profile int

const (
	ProfileA2DP Profile = iota
	ProfileHFP
)

func (p Profile) String() string {
	if p == ProfileHFP {
		return "HFP"
	}
	return "A2DP"
}

// candidateRates returns sample-rate candidates in profile-specific
// order; the first that opens the stream is used, per §4.4.
func candidateRates(p Profile) []uint32 {
	if p == ProfileHFP {
		return []uint32{16000, 8000, 44100, 48000}
	}
	return []uint32{44100, 48000, 16000}
}

// settleDelay bounds how long a device hot-swap is given to recover
// before capture aborts, per §4.4.
const settleDelay = 300 * time.Millisecond

// Capture implements AudioCapture: record while held, yield one PCM
// buffer per session.
type Capture struct {
	ctx *malgo.AllocatedContext
	log logger.Logger

	mu        sync.Mutex
	device    *malgo.Device
	buf       []byte
	recording bool
	lastData  time.Time
	abortErr  error
}

// New allocates the malgo context shared by one Capture for its
// lifetime; Close releases it.
func New(log logger.Logger) (*Capture, error) {
	if log == nil {
		log = logger.Nop{}
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	return &Capture{ctx: mctx, log: log}, nil
}

// Close releases the underlying malgo context. Call once, after the
// last Start/Stop cycle.
func (c *Capture) Close() error {
	return c.ctx.Uninit()
}

// Start opens the input stream on the system-default input device and
// begins appending to an in-memory buffer, per §4.4's start() contract.
func (c *Capture) Start() error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return nil
	}
	c.buf = nil
	c.abortErr = nil
	c.recording = true
	c.lastData = time.Now()
	c.mu.Unlock()

	device, profile, err := c.openBestDevice()
	if err != nil {
		c.mu.Lock()
		c.recording = false
		c.mu.Unlock()
		return err
	}
	c.log.Debug("audio capture opened", "profile", profile.String())

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()

	return device.Start()
}

// openBestDevice tries mono capture at every A2DP candidate rate, then
// at every HFP candidate rate, and keeps the first device that opens;
// the returned Profile is the group that rate came from. The default
// device is not classified as HFP or A2DP before or after opening
// (malgo's device-info enumeration for that is platform-specific), and
// nothing is retried once a device has opened.
func (c *Capture) openBestDevice() (*malgo.Device, Profile, error) {
	var lastErr error
	for _, profile := range []Profile{ProfileA2DP, ProfileHFP} {
		for _, rate := range candidateRates(profile) {
			cfg := malgo.DefaultDeviceConfig(malgo.Capture)
			cfg.Capture.Format = malgo.FormatS16
			cfg.Capture.Channels = Channels
			cfg.SampleRate = rate
			cfg.PeriodSizeInFrames = maxChunkFrames

			device, err := malgo.InitDevice(c.ctx.Context, cfg, malgo.DeviceCallbacks{
				Data: c.onSamples,
			})
			if err != nil {
				lastErr = err
				continue
			}
			return device, profile, nil
		}
	}
	return nil, ProfileA2DP, fmt.Errorf("%w: %v", ErrCaptureUnavailable, lastErr)
}

// onSamples is malgo's capture callback; it runs on the OS audio
// subsystem's own thread and must stay wait-free beyond the lock.
func (c *Capture) onSamples(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}
	c.mu.Lock()
	c.buf = append(c.buf, input...)
	c.lastData = time.Now()
	c.mu.Unlock()
}

// Watchdog should be run periodically (e.g. every 50ms) by the caller's
// worker task pool while recording, to detect a device hot-swap that
// never recovers within settleDelay and convert it into an abort error,
// per §4.4's bounded-settle-delay rule.
func (c *Capture) Watchdog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return
	}
	if time.Since(c.lastData) > settleDelay && c.abortErr == nil {
		c.abortErr = fmt.Errorf("%w: no samples for %s after device change", ErrCaptureUnavailable, settleDelay)
	}
}

// Stop closes the stream and returns the concatenated buffer, or an
// empty result if it is shorter than MinCaptureDuration, per §4.4.
func (c *Capture) Stop() ([]byte, error) {
	c.mu.Lock()
	device := c.device
	buf := c.buf
	abortErr := c.abortErr
	c.recording = false
	c.device = nil
	c.buf = nil
	c.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if abortErr != nil {
		return nil, abortErr
	}

	trimmed := trimTrailingSilence(buf)
	duration := time.Duration(len(trimmed)/bytesPerSample/Channels) * time.Second / SampleRate
	if duration < MinCaptureDuration {
		return nil, nil
	}
	return trimmed, nil
}
