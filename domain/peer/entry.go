package peer

import (
	"net/netip"
	"time"

	"meshcore/domain"
)

// Entry is the roster's view of one peer: its virtual-network addressing,
// the CIDRs it serves as next-hop, and the liveness state of the direct
// UDP path to it.
//
// LastRX is the zero time.Time when P2P has never been proved alive for
// this peer. LastRemoteAddr is the zero netip.AddrPort in the same case.
type Entry struct {
	Identity  domain.Identity
	PrivateIP string
	CIDRs     []string
	IPv6      string
	UDPPort   uint16
	StunIP    string
	StunPort  uint16

	LastRX         time.Time
	LastRemoteAddr netip.AddrPort
}

// ActiveThreshold is the maximum age of LastRX for a peer to still count as
// reachable over the direct UDP path.
const ActiveThreshold = 15 * time.Second

// ReadyForP2P reports whether this entry has everything needed for a direct
// send: a proved-alive timestamp within ActiveThreshold, a non-empty IPv6
// address, and a non-zero UDP port. It does not itself check the clock;
// callers pass now so the check is reproducible in tests.
func (e Entry) ReadyForP2P(now time.Time) bool {
	if e.LastRX.IsZero() {
		return false
	}
	if now.Sub(e.LastRX) > ActiveThreshold {
		return false
	}
	return e.IPv6 != "" && e.UDPPort > 0
}
