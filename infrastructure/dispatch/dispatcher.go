// Package dispatch implements the packet dispatcher: the
// destination-driven choice between the direct P2P path and the relay
// path for outbound IP packets, and the single inbound sink both
// transports deliver Data-frame payloads into.
package dispatch

import (
	"errors"
	"fmt"
	"net/netip"

	"meshcore/application"
	"meshcore/domain/peer"
	"meshcore/infrastructure/stats"
)

const ipv4MinHeaderLen = 20

var (
	// ErrPacketTooShort rejects a packet too small to hold an IPv4 header.
	ErrPacketTooShort = errors.New("dispatch: packet shorter than minimum IPv4 header")
	// ErrHeaderLenInvalid rejects a packet whose declared IHL exceeds its length.
	ErrHeaderLenInvalid = errors.New("dispatch: ihl*4 exceeds packet length")
)

// Dispatcher wires the peer table, the P2P sender, the relay control
// session, and the virtual interface together. Dispatch is purely
// destination-driven and stateless beyond the peer table.
type Dispatcher struct {
	table    *peer.Table
	p2p      application.P2PSender
	control  application.ControlSession
	tun      application.TunDevice
	counters *stats.Counters
	logger   application.Logger
}

var _ application.InboundSink = (*Dispatcher)(nil)

func NewDispatcher(
	table *peer.Table,
	p2p application.P2PSender,
	control application.ControlSession,
	tun application.TunDevice,
	counters *stats.Counters,
	logger application.Logger,
) *Dispatcher {
	return &Dispatcher{table: table, p2p: p2p, control: control, tun: tun, counters: counters, logger: logger}
}

// DispatchOutbound is called with a raw IP packet read from the virtual
// interface. It validates the IPv4 header, looks up the destination's
// peer, and prefers the direct path: P2P is attempted first, and relay is
// attempted exactly once, only when P2P was not attempted or declined.
func (d *Dispatcher) DispatchOutbound(packet []byte) error {
	d.counters.AddRX(len(packet))

	dst, err := destinationIPv4(packet)
	if err != nil {
		return err
	}

	if entry, ok := d.table.FindByDestinationIP(dst); ok && d.p2p != nil {
		if d.p2p.SendPacket(packet, string(entry.Identity)) {
			d.counters.IncP2PSent()
			return nil
		}
	}

	if err := d.control.SendData(packet); err != nil {
		d.counters.IncDropped()
		if d.logger != nil {
			d.logger.Printf("dispatch: dropping packet to %s: %v", dst, err)
		}
		return fmt.Errorf("dispatch: relay send: %w", err)
	}
	d.counters.IncRelaySent()
	return nil
}

// DeliverInbound implements application.InboundSink: both the control
// session and the P2P service deliver decoded Data-frame payloads here,
// regardless of transport. The payload is written to the virtual
// interface verbatim as an IPv4 packet.
func (d *Dispatcher) DeliverInbound(packet []byte) {
	if _, err := d.tun.WritePacket(packet); err != nil {
		if d.logger != nil {
			d.logger.Printf("dispatch: write to tun: %v", err)
		}
		return
	}
	d.counters.AddTX(len(packet))
}

// destinationIPv4 extracts the destination address from an IPv4 header,
// rejecting packets shorter than 20 bytes or whose declared IHL exceeds
// the packet length.
func destinationIPv4(packet []byte) (netip.Addr, error) {
	if len(packet) < ipv4MinHeaderLen {
		return netip.Addr{}, ErrPacketTooShort
	}
	ihl := int(packet[0]&0x0F) * 4
	if ihl > len(packet) {
		return netip.Addr{}, ErrHeaderLenInvalid
	}
	return netip.AddrFrom4([4]byte{packet[16], packet[17], packet[18], packet[19]}), nil
}
