// Package p2p implements the direct peer-to-peer service: the single
// IPv6 UDP socket shared by the probe loop and the receive loop. The
// receive loop decodes frames by kind; the send path is gated by
// liveness precondition checks against the peer table.
package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"meshcore/application"
	"meshcore/domain"
	"meshcore/domain/frame"
	"meshcore/domain/peer"
	"meshcore/domain/wire"
	"meshcore/infrastructure/codec"
)

const (
	// Port is the fixed UDP port the service listens on.
	Port = 51820
	// ProbeInterval is how often the probe loop pings every known peer.
	ProbeInterval = 10 * time.Second

	recvBufferSize = 1 << 16
)

// Service owns the UDP/IPv6 socket used for direct peer-to-peer delivery.
// It is the application.P2PSender the dispatcher holds.
type Service struct {
	identity string
	suite    application.CryptoSuite
	logger   application.Logger
	table    *peer.Table
	sink     application.InboundSink

	conn          *net.UDPConn
	replay        *perPeerReplay
	replayEnabled bool
}

var _ application.P2PSender = (*Service)(nil)

// NewService binds [::]:port and returns a Service ready to Run. Production
// callers pass Port; tests may pass 0 to let the OS assign an ephemeral
// port and read it back via LocalPort.
func NewService(
	identity string,
	suite application.CryptoSuite,
	logger application.Logger,
	table *peer.Table,
	sink application.InboundSink,
	port uint16,
) (*Service, error) {
	conn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6zero, Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("p2p: listen [::]:%d: %w", port, err)
	}
	replayEnabled := false
	if rs, ok := suite.(application.ReplaySafe); ok {
		replayEnabled = rs.RandomizesOutput()
	}

	return &Service{
		identity:      identity,
		suite:         suite,
		logger:        logger,
		table:         table,
		sink:          sink,
		conn:          conn,
		replay:        newPerPeerReplay(),
		replayEnabled: replayEnabled,
	}, nil
}

// LocalPort returns the bound UDP port, for self-advertisement.
func (s *Service) LocalPort() uint16 {
	return uint16(s.conn.LocalAddr().(*net.UDPAddr).Port)
}

// SetSink wires the delivery target for decoded Data frames. It exists so
// callers can break the construction-order cycle between a Service and
// whatever InboundSink also needs a reference to the Service (the packet
// dispatcher, which is itself an application.P2PSender consumer): build
// the Service first, build the sink from it, then call SetSink before Run.
// Not safe to call concurrently with Run.
func (s *Service) SetSink(sink application.InboundSink) {
	s.sink = sink
}

// Run drives the probe loop and the receive loop until ctx is canceled or
// either loop hits a fatal socket error.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.probeLoop(gctx) })
	g.Go(func() error { return s.recvLoop(gctx) })

	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	return g.Wait()
}

func (s *Service) Close() error {
	return s.conn.Close()
}

// probeLoop sends a ProbeIpv6 to every peer with a usable address every
// ProbeInterval. A probe's purpose is symmetric: our packet reaching the
// peer proves to them that we are reachable at our advertised address; it
// says nothing about whether they are reachable to us.
func (s *Service) probeLoop(ctx context.Context) error {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.probeAll()
		}
	}
}

func (s *Service) probeAll() {
	payload, err := json.Marshal(wire.Probe{Identity: s.identity})
	if err != nil {
		return
	}
	wireBytes, err := codec.Encode(frame.ProbeIPv6, payload, s.suite)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("p2p: encode probe: %v", err)
		}
		return
	}

	for _, e := range s.table.Snapshot() {
		if e.IPv6 == "" || e.UDPPort == 0 {
			continue
		}
		addr, err := parseIPv6HostPort(e.IPv6, e.UDPPort)
		if err != nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(wireBytes, addr); err != nil && s.logger != nil {
			s.logger.Printf("p2p: probe %s (%s): %v", e.Identity, formatHostPort(e.IPv6, e.UDPPort), err)
		}
	}
}

// recvLoop reads datagrams and dispatches each successfully decoded frame
// by kind. A decode failure is logged and the datagram dropped; it never
// closes the socket. Only an error from the socket itself (not from the
// codec) ends the loop.
func (s *Service) recvLoop(ctx context.Context) error {
	buf := make([]byte, recvBufferSize)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("p2p: recv: %w", err)
		}
		s.handleDatagram(buf[:n], addr)
	}
}

func (s *Service) handleDatagram(data []byte, addr *net.UDPAddr) {
	kind, payload, _, err := codec.Decode(data, s.suite)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("p2p: dropping malformed datagram from %s: %v", addr, err)
		}
		return
	}

	srcAddrPort := addr.AddrPort()
	if s.replayEnabled && !s.replay.Admit(srcAddrPort.String(), data) {
		if s.logger != nil {
			s.logger.Printf("p2p: dropping replayed datagram from %s", addr)
		}
		return
	}

	switch kind {
	case frame.ProbeIPv6:
		var p wire.Probe
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		s.table.OnProbeReceived(domain.Identity(p.Identity), srcAddrPort, time.Now())
	case frame.Data:
		if s.sink != nil {
			s.sink.DeliverInbound(payload)
		}
	default:
		// ProbeHolePunch and any other kind: ignored silently. The kind
		// stays on the wire for compatibility; the client never acts on it.
	}
}

// SendPacket implements application.P2PSender. It checks the liveness and
// addressing preconditions in order and sends nothing if any fails.
func (s *Service) SendPacket(packet []byte, identity string) bool {
	entry, ok := s.table.Get(domain.Identity(identity))
	if !ok {
		return false
	}
	if !entry.ReadyForP2P(time.Now()) {
		return false
	}

	addr, err := parseIPv6HostPort(entry.IPv6, entry.UDPPort)
	if err != nil {
		return false
	}
	wireBytes, err := codec.Encode(frame.Data, packet, s.suite)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("p2p: encode data frame for %s: %v", identity, err)
		}
		return false
	}
	if _, err := s.conn.WriteToUDP(wireBytes, addr); err != nil {
		if s.logger != nil {
			s.logger.Printf("p2p: send to %s: %v", identity, err)
		}
		return false
	}
	return true
}
