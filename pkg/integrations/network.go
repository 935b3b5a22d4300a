package integrations

import (
	"context"
	"net"
	"time"

	"github.com/haloassist/halo/pkg/eventbus"
)

// DefaultPingHosts mirrors NetworkManagerConfig's ping_hosts default.
var DefaultPingHosts = []string{"1.1.1.1:443", "8.8.8.8:443"}

// NetworkProbe periodically checks reachability against a short list of
// well-known hosts and publishes network.status_changed on transition,
// grounded on network_manager_integration.py's check_interval/ping_hosts
// polling loop.
type NetworkProbe struct {
	bus           *eventbus.Bus
	hosts         []string
	checkInterval time.Duration
	pingTimeout   time.Duration
	dial          func(network, addr string, timeout time.Duration) (net.Conn, error)

	status string // "connected" | "disconnected"
}

// NewNetworkProbe wires a probe that checks every checkInterval, dialing
// each host with pingTimeout, and reports "disconnected" only once every
// host in the list fails.
func NewNetworkProbe(bus *eventbus.Bus, checkInterval, pingTimeout time.Duration) *NetworkProbe {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second
	}
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	return &NetworkProbe{
		bus:           bus,
		hosts:         DefaultPingHosts,
		checkInterval: checkInterval,
		pingTimeout:   pingTimeout,
		dial:          net.DialTimeout,
		status:        "connected",
	}
}

// Run polls until ctx is cancelled, publishing network.status_changed
// whenever reachability flips.
func (p *NetworkProbe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkOnce()
		}
	}
}

func (p *NetworkProbe) checkOnce() {
	reachable := p.probe()
	newStatus := "disconnected"
	if reachable {
		newStatus = "connected"
	}
	if newStatus == p.status {
		return
	}
	old := p.status
	p.status = newStatus
	p.bus.Publish("network.status_changed", map[string]any{
		"old": old,
		"new": newStatus,
	}, eventbus.MEDIUM)
}

func (p *NetworkProbe) probe() bool {
	for _, host := range p.hosts {
		conn, err := p.dial("tcp", host, p.pingTimeout)
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}
