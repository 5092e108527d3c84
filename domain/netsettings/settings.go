package netsettings

// Settings is the network configuration pushed to the TunDevice: the
// tunnel's own address/mask/gateway (set once from the first handshake
// reply) plus the current set of CIDRs reachable through peers (refreshed
// as the roster changes).
type Settings struct {
	LocalIP string
	Mask    string
	Gateway string
	CIDRs   []string
}

// Equal reports whether two Settings describe the same configuration,
// treating CIDRs as a set (order-independent).
func (s Settings) Equal(other Settings) bool {
	if s.LocalIP != other.LocalIP || s.Mask != other.Mask || s.Gateway != other.Gateway {
		return false
	}
	return sameSet(s.CIDRs, other.CIDRs)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
