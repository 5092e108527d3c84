// Package control implements the control session and the reconnect
// supervisor that owns it: the single encrypted TCP channel used for the
// handshake, the roster's keepalive heartbeat, and relay-path delivery
// when no P2P route exists.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"meshcore/application"
	"meshcore/domain/frame"
	"meshcore/domain/sessionstate"
	"meshcore/domain/wire"
	"meshcore/infrastructure/codec"
)

const (
	// DefaultKeepAliveInterval is used when a configuration supplies no
	// override.
	DefaultKeepAliveInterval = 10 * time.Second
	// InactivityTimeout closes the session when no decoded frame and no
	// successful write happen within this window.
	InactivityTimeout = 30 * time.Second
	// TimeoutCheckInterval is how often the timeout task samples last_active.
	TimeoutCheckInterval = 5 * time.Second

	dialTimeout       = 10 * time.Second
	readChunkSize     = 4096
	readBufferMaxSize = 256 * 1024
)

// SelfAdvertisement is the self-reported reachability the keepalive task
// reads on every tick; the IPv6 discoverer and the P2P listener supply it.
type SelfAdvertisement struct {
	IPv6     string
	UDPPort  uint16
	StunIP   string
	StunPort uint16
}

// Callbacks groups the session's event hooks. All are optional; a nil
// callback is simply skipped.
type Callbacks struct {
	OnHandshakeReply func(wire.HandshakeReply)
	OnDataFrame      func([]byte)
	OnKeepAlive      func(wire.KeepAlive)
	OnClosed         func()
}

// Session owns one TCP connection to the server. It is built fresh by the
// reconnect supervisor on every (re)connect attempt; a closed Session is
// never reused.
type Session struct {
	identity          string
	addr              string
	keepAliveInterval time.Duration
	suite             application.CryptoSuite
	logger            application.Logger
	selfAdvertisement func() SelfAdvertisement
	callbacks         Callbacks

	conn    net.Conn
	writeMu sync.Mutex

	state          atomic.Int32
	lastActiveNano atomic.Int64

	readyOnce sync.Once
	readyCb   func(error)

	connectedCh chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	cancel      context.CancelFunc
}

// NewSession builds a Session in state Initialize; it does nothing until
// Start is called.
func NewSession(
	identity, addr string,
	suite application.CryptoSuite,
	logger application.Logger,
	keepAliveInterval time.Duration,
	selfAdvertisement func() SelfAdvertisement,
	callbacks Callbacks,
) *Session {
	if keepAliveInterval <= 0 {
		keepAliveInterval = DefaultKeepAliveInterval
	}
	s := &Session{
		identity:          identity,
		addr:              addr,
		keepAliveInterval: keepAliveInterval,
		suite:             suite,
		logger:            logger,
		selfAdvertisement: selfAdvertisement,
		callbacks:         callbacks,
		connectedCh:       make(chan struct{}),
		closed:            make(chan struct{}),
	}
	s.state.Store(int32(sessionstate.Initialize))
	return s
}

// State returns the session's current lifecycle position.
func (s *Session) State() sessionstate.State {
	return sessionstate.State(s.state.Load())
}

// Start dials the server, emits the Handshake frame, and spawns the reader,
// keepalive, and timeout tasks. readyCb fires exactly once: with nil after
// the first HandshakeReply, or with an error if the session never reaches
// Connected. Start returns once the dial and the Handshake write have
// completed or failed; the tasks then run until Close or a fatal error.
func (s *Session) Start(ctx context.Context, readyCb func(error)) {
	if readyCb == nil {
		readyCb = func(error) {}
	}
	s.readyCb = readyCb
	s.state.Store(int32(sessionstate.Connecting))

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	dialCtx, dialCancel := context.WithTimeout(runCtx, dialTimeout)
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", s.addr)
	dialCancel()
	if err != nil {
		s.failEarly(fmt.Errorf("control: dial %s: %w", s.addr, err))
		return
	}
	s.conn = conn
	s.touch()

	if err := s.writeRaw(frame.Handshake, wire.Handshake{Identity: s.identity}); err != nil {
		_ = conn.Close()
		s.failEarly(fmt.Errorf("control: handshake write: %w", err))
		return
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.keepAliveLoop(gctx) })
	g.Go(func() error { return s.timeoutLoop(gctx) })

	go func() {
		err := g.Wait()
		s.finish(err)
	}()
}

// failEarly handles a failure before the TCP connection (or the handshake
// write) ever succeeds: there is no errgroup running yet, so this path
// drives the state transition and callback firing itself.
func (s *Session) failEarly(err error) {
	s.state.Store(int32(sessionstate.Closed))
	s.readyOnce.Do(func() { s.readyCb(err) })
	close(s.connectedCh)
	if s.callbacks.OnClosed != nil {
		s.callbacks.OnClosed()
	}
	close(s.closed)
}

// finish runs once the session's task group has exited, by error or by
// Close. It is the single place that transitions to Closed after a
// successful connect.
func (s *Session) finish(err error) {
	s.state.Store(int32(sessionstate.Closed))
	s.readyOnce.Do(func() {
		if err == nil {
			// Closed before any HandshakeReply arrived.
			err = ErrClosed
		}
		s.readyCb(err)
	})
	if s.conn != nil {
		_ = s.conn.Close()
	}
	select {
	case <-s.connectedCh:
	default:
		close(s.connectedCh)
	}
	if s.callbacks.OnClosed != nil {
		s.callbacks.OnClosed()
	}
	close(s.closed)
}

// Close is idempotent: it cancels the socket, waits for the worker tasks to
// exit, and fires on_closed exactly once (via finish for a started session)
// before returning.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			// Never started: no tasks exist and finish will never run.
			s.state.Store(int32(sessionstate.Closed))
			close(s.connectedCh)
			if s.callbacks.OnClosed != nil {
				s.callbacks.OnClosed()
			}
			close(s.closed)
			return
		}
		s.cancel()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
	<-s.closed
	return nil
}

// SendData wraps packet as a Data frame and writes it. It is the
// application.ControlSession implementation consumed by the dispatcher.
func (s *Session) SendData(packet []byte) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if s.State() != sessionstate.Connected {
		return ErrNotConnected
	}
	return s.writeFrame(frame.Data, packet)
}

func (s *Session) touch() {
	s.lastActiveNano.Store(time.Now().UnixNano())
}

func (s *Session) writeRaw(kind frame.Kind, v any) error {
	wireBytes, err := codec.EncodeJSON(kind, v, s.suite)
	if err != nil {
		return err
	}
	return s.send(wireBytes)
}

func (s *Session) writeFrame(kind frame.Kind, payload []byte) error {
	wireBytes, err := codec.Encode(kind, payload, s.suite)
	if err != nil {
		return err
	}
	return s.send(wireBytes)
}

func (s *Session) send(wireBytes []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if _, err := s.conn.Write(wireBytes); err != nil {
		return err
	}
	// A successful write counts as activity: a silent server behind a
	// writable socket is still alive.
	s.touch()
	return nil
}

func (s *Session) readLoop(ctx context.Context) error {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := s.conn.Read(chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control: read: %w", err)
		}
		buf = append(buf, chunk[:n]...)

		for {
			kind, payload, consumed, derr := codec.Decode(buf, s.suite)
			if derr != nil {
				if errors.Is(derr, codec.ErrTooShort) {
					if len(buf) > readBufferMaxSize {
						return ErrFrameTooLarge
					}
					break
				}
				return fmt.Errorf("control: decode: %w", derr)
			}
			buf = buf[consumed:]
			s.touch()
			s.dispatch(kind, payload)
		}
	}
}

func (s *Session) dispatch(kind frame.Kind, payload []byte) {
	switch kind {
	case frame.HandshakeReply:
		var hr wire.HandshakeReply
		if err := json.Unmarshal(payload, &hr); err != nil {
			if s.logger != nil {
				s.logger.Printf("control: malformed HandshakeReply: %v", err)
			}
			return
		}
		s.state.Store(int32(sessionstate.Connected))
		s.readyOnce.Do(func() {
			close(s.connectedCh)
			s.readyCb(nil)
		})
		if s.callbacks.OnHandshakeReply != nil {
			s.callbacks.OnHandshakeReply(hr)
		}
	case frame.KeepAlive:
		var ka wire.KeepAlive
		if err := json.Unmarshal(payload, &ka); err != nil {
			if s.logger != nil {
				s.logger.Printf("control: malformed KeepAlive: %v", err)
			}
			return
		}
		if s.callbacks.OnKeepAlive != nil {
			s.callbacks.OnKeepAlive(ka)
		}
	case frame.Data:
		if s.callbacks.OnDataFrame != nil {
			s.callbacks.OnDataFrame(payload)
		}
	default:
		// ProbeIpv6/ProbeHolePunch/unknown kinds never arrive on the
		// control channel; ignored silently, matching the P2P receive
		// loop's "others: ignored" rule.
	}
}

func (s *Session) keepAliveLoop(ctx context.Context) error {
	select {
	case <-s.connectedCh:
	case <-ctx.Done():
		return nil
	}
	if s.State() != sessionstate.Connected {
		return nil
	}

	ticker := time.NewTicker(s.keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			adv := SelfAdvertisement{}
			if s.selfAdvertisement != nil {
				adv = s.selfAdvertisement()
			}
			ka := wire.KeepAlive{
				Identity:    s.identity,
				IPv6:        adv.IPv6,
				Port:        adv.UDPPort,
				StunIP:      adv.StunIP,
				StunPort:    adv.StunPort,
				PeerDetails: []wire.PeerDetail{},
			}
			if err := s.writeRaw(frame.KeepAlive, ka); err != nil {
				return fmt.Errorf("control: keepalive write: %w", err)
			}
		}
	}
}

func (s *Session) timeoutLoop(ctx context.Context) error {
	select {
	case <-s.connectedCh:
	case <-ctx.Done():
		return nil
	}
	if s.State() != sessionstate.Connected {
		return nil
	}

	ticker := time.NewTicker(TimeoutCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			last := time.Unix(0, s.lastActiveNano.Load())
			if time.Since(last) > InactivityTimeout {
				cause := fmt.Errorf("control: inactivity timeout (last_active %s ago)", time.Since(last))
				return newErrTimeout(cause)
			}
		}
	}
}
