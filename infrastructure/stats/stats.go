// Package stats implements the client's atomic counters and the read-only
// snapshot served to whatever host-side mechanism queries peer state.
package stats

import (
	"sync/atomic"
	"time"

	"meshcore/application"
	"meshcore/domain/peer"
	"meshcore/domain/sessionstate"
)

// Counters is the client's traffic counter set. No locking: every field
// is updated independently and read independently.
type Counters struct {
	rxBytes   atomic.Uint64
	txBytes   atomic.Uint64
	rxPackets atomic.Uint64
	txPackets atomic.Uint64
	p2pSent   atomic.Uint64
	relaySent atomic.Uint64
	dropped   atomic.Uint64
}

func (c *Counters) AddRX(n int) {
	if n <= 0 {
		return
	}
	c.rxBytes.Add(uint64(n))
	c.rxPackets.Add(1)
}

func (c *Counters) AddTX(n int) {
	if n <= 0 {
		return
	}
	c.txBytes.Add(uint64(n))
	c.txPackets.Add(1)
}

func (c *Counters) IncP2PSent() {
	c.p2pSent.Add(1)
}

func (c *Counters) IncRelaySent() {
	c.relaySent.Add(1)
}

// IncDropped records a packet the dispatcher could not deliver by either
// path, typically because the relay session was not connected.
func (c *Counters) IncDropped() {
	c.dropped.Add(1)
}

// Collector owns the Counters plus the state needed to build a full
// Snapshot: connect time, current session state, virtual IP, and the peer
// table to derive per-peer is_p2p at read time.
type Collector struct {
	Counters

	connectTime atomic.Int64 // unix nanos; zero means "not yet connected"
	state       atomic.Value // sessionstate.State
	virtualIP   atomic.Value // string

	peers *peer.Table
}

func NewCollector(peers *peer.Table) *Collector {
	c := &Collector{peers: peers}
	c.state.Store(sessionstate.Initialize)
	c.virtualIP.Store("")
	return c
}

func (c *Collector) SetState(s sessionstate.State) {
	c.state.Store(s)
}

func (c *Collector) SetVirtualIP(ip string) {
	c.virtualIP.Store(ip)
}

// MarkConnected records the connect time the first time it is called;
// later calls are no-ops so reconnects do not reset it mid-session unless
// the caller explicitly resets via ResetConnectTime.
func (c *Collector) MarkConnected(now time.Time) {
	c.connectTime.CompareAndSwap(0, now.UnixNano())
}

func (c *Collector) ResetConnectTime() {
	c.connectTime.Store(0)
}

// Snapshot implements application.Observer. is_p2p is derived at read
// time from the peer table, never persisted in the peer entry.
func (c *Collector) Snapshot() application.Snapshot {
	now := time.Now()
	entries := c.peers.Snapshot()
	peers := make([]application.PeerObservation, 0, len(entries))
	for _, e := range entries {
		peers = append(peers, application.PeerObservation{
			Identity:  string(e.Identity),
			PrivateIP: e.PrivateIP,
			IPv6:      e.IPv6,
			UDPPort:   e.UDPPort,
			IsP2P:     e.ReadyForP2P(now),
		})
	}

	var connectTime time.Time
	if ns := c.connectTime.Load(); ns != 0 {
		connectTime = time.Unix(0, ns)
	}

	return application.Snapshot{
		State:       c.state.Load().(sessionstate.State).String(),
		VirtualIP:   c.virtualIP.Load().(string),
		ConnectTime: connectTime,
		RXBytes:     c.rxBytes.Load(),
		TXBytes:     c.txBytes.Load(),
		RXPackets:   c.rxPackets.Load(),
		TXPackets:   c.txPackets.Load(),
		P2PSent:     c.p2pSent.Load(),
		RelaySent:   c.relaySent.Load(),
		Dropped:     c.dropped.Load(),
		Peers:       peers,
	}
}
