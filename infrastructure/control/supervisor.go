package control

import (
	"context"
	"sync/atomic"
	"time"

	"meshcore/application"
)

// ReconnectBackoff is the fixed delay between a session closing and the
// supervisor building its replacement.
const ReconnectBackoff = 3 * time.Second

// Handle is the stable application.ControlSession the rest of the client
// holds onto across reconnects: the supervisor swaps the Session underneath
// it, but SendData always reaches whichever session is current.
type Handle struct {
	current atomic.Pointer[Session]
}

func (h *Handle) SendData(packet []byte) error {
	s := h.current.Load()
	if s == nil {
		return ErrNotConnected
	}
	return s.SendData(packet)
}

// Current returns the session currently owned by the handle, or nil before
// the first connect attempt.
func (h *Handle) Current() *Session { return h.current.Load() }

var _ application.ControlSession = (*Handle)(nil)

// Supervisor owns at most one control session at a time. When a session
// closes it waits ReconnectBackoff and builds a new one via factory;
// concurrent close signals are deduplicated through reconnecting, and
// Close is terminal.
type Supervisor struct {
	factory func(onClosed func()) *Session
	logger  application.Logger
	handle  *Handle

	reconnecting atomic.Bool
	closed       atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor builds a supervisor around factory, which must construct a
// fresh, not-yet-started Session wired to call onClosed when its session
// exits.
func NewSupervisor(factory func(onClosed func()) *Session, logger application.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{factory: factory, logger: logger, handle: &Handle{}, ctx: ctx, cancel: cancel}
}

// Handle returns the stable ControlSession the dispatcher should hold.
func (sv *Supervisor) Handle() *Handle { return sv.handle }

// Start launches the first connection attempt.
func (sv *Supervisor) Start() {
	sv.launch()
}

func (sv *Supervisor) launch() {
	if sv.closed.Load() {
		return
	}
	sess := sv.factory(sv.onClosed)
	sv.handle.current.Store(sess)
	sess.Start(sv.ctx, func(err error) {
		if err != nil && sv.logger != nil {
			sv.logger.Printf("control: session ended: %v", err)
		}
	})
}

func (sv *Supervisor) onClosed() {
	if sv.closed.Load() {
		return
	}
	if !sv.reconnecting.CompareAndSwap(false, true) {
		// Already reconnecting: a second close signal is a no-op.
		return
	}
	go func() {
		defer sv.reconnecting.Store(false)
		select {
		case <-time.After(ReconnectBackoff):
		case <-sv.ctx.Done():
			return
		}
		sv.launch()
	}()
}

// Close is terminal: no further reconnect attempts are made.
func (sv *Supervisor) Close() error {
	if !sv.closed.CompareAndSwap(false, true) {
		return nil
	}
	sv.cancel()
	if s := sv.handle.current.Load(); s != nil {
		_ = s.Close()
	}
	return nil
}
