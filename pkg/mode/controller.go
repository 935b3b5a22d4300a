package mode

import (
	"sync"
	"time"

	"github.com/haloassist/halo/pkg/eventbus"
)

// ModeChanged is the payload of app.mode_changed.
type ModeChanged struct {
	Mode     Mode
	Previous Mode
}

// RequestRejected is the payload of mode.request_rejected.
type RequestRejected struct {
	Request Request
	Reason  RejectionReason
}

// InterruptIgnored is the payload of interrupt.ignored.
type InterruptIgnored struct {
	Request Request
}

// Clock abstracts time.Now for watchdog tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) func()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Config controls optional watchdog timeouts. Zero disables a watchdog,
// matching the "(default 0, i.e. disabled)" wording of the source spec.
type Config struct {
	ListeningTimeout  time.Duration
	ProcessingTimeout time.Duration
}

// Controller is the single authority over Mode. It is safe for
// concurrent use; every mutation happens under mu, and ModeRequest
// events are arbitrated purely as a function of (current mode, request).
type Controller struct {
	mu            sync.Mutex
	current       Mode
	activeSession int64
	greetingArmed bool

	cfg   Config
	clock Clock
	bus   *eventbus.Bus

	cancelListeningWatchdog  func()
	cancelProcessingWatchdog func()
}

// New constructs a Controller in SLEEPING, wired to bus for event
// emission and subscribed to mode.request at CRITICAL priority so
// interrupt-sourced requests are arbitrated ahead of anything else
// already queued for this tick.
func New(bus *eventbus.Bus, cfg Config) *Controller {
	c := &Controller{
		current: Sleeping,
		cfg:     cfg,
		clock:   realClock{},
		bus:     bus,
	}
	bus.Subscribe("mode.request", eventbus.CRITICAL, func(e eventbus.Event) {
		if req, ok := e.Payload.(Request); ok {
			c.Handle(req)
		}
	})
	return c
}

// SetClock overrides the clock, for deterministic watchdog tests.
func (c *Controller) SetClock(clk Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clk
}

// Current returns the current Mode under lock.
func (c *Controller) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// ActiveSession returns the session_id tracked while LISTENING or
// PROCESSING, or 0 if none.
func (c *Controller) ActiveSession() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSession
}

// ArmGreeting allows exactly the next SLEEPING->PROCESSING request
// carrying SourceGreeting to succeed; every other greeting request is
// rejected. This is the resolution of the "greeting trigger" open
// question (see DESIGN.md): the bypass exists only behind an explicit
// arming call. No greeting.request event is defined in this module and
// nothing subscribes to one; the gate is armed only by calling
// ArmGreeting directly.
func (c *Controller) ArmGreeting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.greetingArmed = true
}

// Handle arbitrates req against the current mode and, if it is honoured,
// applies the transition and publishes app.mode_changed. It never
// blocks: emission happens synchronously via the already-locked bus's
// cooperative scheduler.
func (c *Controller) Handle(req Request) Outcome {
	c.mu.Lock()
	outcome := c.arbitrate(req)
	if outcome.Changed {
		c.applyLocked(outcome, req)
	}
	c.mu.Unlock()

	if outcome.Changed {
		c.bus.Publish("app.mode_changed", ModeChanged{Mode: outcome.New, Previous: outcome.Previous}, eventbus.HIGH)
		return outcome
	}

	switch outcome.Rejected {
	case RejectedSameMode:
		// no-op by design: spec invariant 8, never reported.
	default:
		if req.Source == SourceInterrupt {
			c.bus.Publish("interrupt.ignored", InterruptIgnored{Request: req}, eventbus.HIGH)
		} else {
			c.bus.Publish("mode.request_rejected", RequestRejected{Request: req, Reason: outcome.Rejected}, eventbus.HIGH)
		}
	}
	return outcome
}

// arbitrate computes the Outcome without mutating state. Caller holds mu.
func (c *Controller) arbitrate(req Request) Outcome {
	if req.Target == c.current {
		return Outcome{Changed: false, Rejected: RejectedSameMode}
	}

	if req.Source == SourceInterrupt {
		if !IsAllowed(c.current, req.Target) {
			return Outcome{Changed: false, Rejected: RejectedTransitionNotAllowed}
		}
		return Outcome{Changed: true, Previous: c.current, New: req.Target}
	}

	if req.Source == SourceGreeting {
		if c.current != Sleeping || req.Target != Processing {
			return Outcome{Changed: false, Rejected: RejectedTransitionNotAllowed}
		}
		if !c.greetingArmed {
			return Outcome{Changed: false, Rejected: RejectedGreetingNotArmed}
		}
		return Outcome{Changed: true, Previous: c.current, New: req.Target}
	}

	if !IsAllowed(c.current, req.Target) {
		return Outcome{Changed: false, Rejected: RejectedTransitionNotAllowed}
	}

	if c.current == Processing && req.SessionID != 0 && req.SessionID != c.activeSession {
		return Outcome{Changed: false, Rejected: RejectedSessionMismatch}
	}

	return Outcome{Changed: true, Previous: c.current, New: req.Target}
}

// applyLocked performs the state mutation side of a successful Outcome.
// Caller holds mu.
func (c *Controller) applyLocked(outcome Outcome, req Request) {
	switch outcome.New {
	case Listening:
		c.activeSession = req.SessionID
		c.cancelListeningWatchdog = c.armWatchdog(c.cancelListeningWatchdog, c.cfg.ListeningTimeout, req.SessionID)
	case Processing:
		c.stopWatchdogLocked(&c.cancelListeningWatchdog)
		c.cancelProcessingWatchdog = c.armWatchdog(c.cancelProcessingWatchdog, c.cfg.ProcessingTimeout, req.SessionID)
	case Sleeping:
		c.stopWatchdogLocked(&c.cancelListeningWatchdog)
		c.stopWatchdogLocked(&c.cancelProcessingWatchdog)
		c.activeSession = 0
		c.greetingArmed = false
	}
	c.current = outcome.New
}

func (c *Controller) stopWatchdogLocked(cancel *func()) {
	if *cancel != nil {
		(*cancel)()
		*cancel = nil
	}
}

// armWatchdog schedules a synthesized SLEEPING transition if timeout>0.
// It stops any prior watchdog registered in cancel first.
func (c *Controller) armWatchdog(cancel func(), timeout time.Duration, sessionID int64) func() {
	if cancel != nil {
		cancel()
	}
	if timeout <= 0 {
		return nil
	}
	return c.clock.AfterFunc(timeout, func() {
		c.Handle(Request{Target: Sleeping, Source: SourceModeManagement, SessionID: sessionID})
	})
}
