package peer

import (
	"net/netip"
	"sync"
	"time"

	"meshcore/domain"
)

// Table is the authoritative, thread-safe roster. It is protected by a
// single mutex; every operation below is O(peers) at worst and holds the
// lock for no suspension point, matching the "PeerTable is a single mutex;
// operations are short" concurrency rule.
type Table struct {
	mu      sync.Mutex
	entries map[domain.Identity]Entry
}

func NewTable() *Table {
	return &Table{entries: make(map[domain.Identity]Entry)}
}

// Rewrite atomically replaces the whole table. Used when a HandshakeReply
// defines the authoritative roster.
func (t *Table) Rewrite(entries []Entry) {
	next := make(map[domain.Identity]Entry, len(entries))
	for _, e := range entries {
		next[e.Identity] = e
	}
	t.mu.Lock()
	t.entries = next
	t.mu.Unlock()
}

// Upsert merges entries by identity. A new identity is inserted with no
// proved liveness. An existing identity has its cidrs/private_ip/stun_*/
// udp_port overwritten; ipv6 is updated only when the incoming value is
// non-empty and different, in which case liveness is reset (the old path
// is presumed dead).
func (t *Table) Upsert(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, incoming := range entries {
		existing, ok := t.entries[incoming.Identity]
		if !ok {
			incoming.LastRX = time.Time{}
			incoming.LastRemoteAddr = netip.AddrPort{}
			t.entries[incoming.Identity] = incoming
			continue
		}

		merged := existing
		merged.CIDRs = incoming.CIDRs
		merged.PrivateIP = incoming.PrivateIP
		merged.StunIP = incoming.StunIP
		merged.StunPort = incoming.StunPort
		merged.UDPPort = incoming.UDPPort

		if incoming.IPv6 != "" && incoming.IPv6 != existing.IPv6 {
			merged.IPv6 = incoming.IPv6
			merged.LastRX = time.Time{}
			merged.LastRemoteAddr = netip.AddrPort{}
		}
		t.entries[incoming.Identity] = merged
	}
}

// OnProbeReceived marks identity as proved-alive as of now, observed at src.
func (t *Table) OnProbeReceived(identity domain.Identity, src netip.AddrPort, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[identity]
	if !ok {
		return
	}
	e.LastRX = now
	e.LastRemoteAddr = src
	t.entries[identity] = e
}

// FindByDestinationIP returns the peer whose private_ip matches exactly, or
// failing that, the first peer (in map iteration order) whose cidrs
// contains ip. The roster is expected not to advertise overlapping CIDRs;
// when it does, the match is unspecified beyond "some containing peer".
func (t *Table) FindByDestinationIP(ip netip.Addr) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.PrivateIP == "" {
			continue
		}
		if addr, err := netip.ParseAddr(e.PrivateIP); err == nil && addr == ip {
			return e, true
		}
	}
	for _, e := range t.entries {
		for _, c := range e.CIDRs {
			prefix, err := netip.ParsePrefix(c)
			if err != nil {
				continue
			}
			if prefix.Contains(ip) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// IsActive reports whether identity's direct path was proved alive within
// ActiveThreshold of now.
func (t *Table) IsActive(identity domain.Identity, now time.Time) bool {
	t.mu.Lock()
	e, ok := t.entries[identity]
	t.mu.Unlock()
	if !ok {
		return false
	}
	return !e.LastRX.IsZero() && now.Sub(e.LastRX) <= ActiveThreshold
}

// Get returns a copy of the entry for identity, if present.
func (t *Table) Get(identity domain.Identity) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[identity]
	return e, ok
}

// Snapshot returns a copy of every entry currently in the table, for the
// observation interface and the probe loop.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}
