package integrations

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/haloassist/halo/pkg/eventbus"
)

func TestNetworkProbePublishesOnTransitionToDisconnected(t *testing.T) {
	bus := eventbus.New(nil)
	var got map[string]any
	bus.Subscribe("network.status_changed", eventbus.MEDIUM, func(ev eventbus.Event) {
		got = ev.Payload.(map[string]any)
	})

	p := NewNetworkProbe(bus, time.Hour, time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return nil, errors.New("unreachable")
	}

	p.checkOnce()

	if got == nil || got["new"] != "disconnected" || got["old"] != "connected" {
		t.Fatalf("got %v, want old=connected new=disconnected", got)
	}
}

func TestNetworkProbeNoOpWhenStatusUnchanged(t *testing.T) {
	bus := eventbus.New(nil)
	fired := false
	bus.Subscribe("network.status_changed", eventbus.MEDIUM, func(ev eventbus.Event) { fired = true })

	p := NewNetworkProbe(bus, time.Hour, time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		client, _ := net.Pipe()
		return client, nil
	}

	p.checkOnce()

	if fired {
		t.Fatal("expected no event when still connected")
	}
}

func TestNetworkProbeRecoversToConnected(t *testing.T) {
	bus := eventbus.New(nil)
	var events []map[string]any
	bus.Subscribe("network.status_changed", eventbus.MEDIUM, func(ev eventbus.Event) {
		events = append(events, ev.Payload.(map[string]any))
	})

	p := NewNetworkProbe(bus, time.Hour, time.Second)
	unreachable := true
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		if unreachable {
			return nil, errors.New("down")
		}
		client, _ := net.Pipe()
		return client, nil
	}

	p.checkOnce()
	unreachable = false
	p.checkOnce()

	if len(events) != 2 || events[1]["new"] != "connected" {
		t.Fatalf("got %v, want a recovery transition", events)
	}
}
