package p2p

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// parseIPv6HostPort accepts both bracketed ("[fd00::2]") and bare
// ("fd00::2") IPv6 address forms and combines it with port into a
// *net.UDPAddr suitable for WriteToUDP.
func parseIPv6HostPort(host string, port uint16) (*net.UDPAddr, error) {
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, fmt.Errorf("p2p: invalid ipv6 address %q: %w", host, err)
	}
	return &net.UDPAddr{IP: net.IP(addr.AsSlice()), Port: int(port)}, nil
}

// formatHostPort renders host:port for log messages, bracketing IPv6 hosts.
func formatHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
