package control

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meshcore/application"
	"meshcore/domain/frame"
	"meshcore/domain/wire"
	"meshcore/infrastructure/codec"
	"meshcore/infrastructure/crypto"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Printf(format string, v ...any) { l.t.Logf(format, v...) }

func mustPlainSuite(t *testing.T) application.CryptoSuite {
	t.Helper()
	return crypto.NewPlain()
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestSession_HandshakeThenReady(t *testing.T) {
	ln := listen(t)
	suite := mustPlainSuite(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	var gotHandshake atomic.Pointer[wire.Handshake]
	go func() {
		conn := <-accepted
		defer conn.Close()

		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		var hs wire.Handshake
		kind, _, derr := codec.DecodeJSON(buf[:n], suite, &hs)
		if derr != nil || kind != frame.Handshake {
			return
		}
		gotHandshake.Store(&hs)

		reply := wire.HandshakeReply{
			PrivateIP: "10.0.0.2",
			Mask:      "255.255.255.0",
			Gateway:   "10.0.0.1",
			PeerDetails: []wire.PeerDetail{
				{Identity: "peer-2", PrivateIP: "10.0.0.3", Ciders: []string{"10.0.2.0/24"}},
			},
		}
		out, err := codec.EncodeJSON(frame.HandshakeReply, reply, suite)
		require.NoError(t, err)
		_, _ = conn.Write(out)

		// keep the connection open until the test closes it.
		_, _ = conn.Read(buf)
	}()

	var readyErr error
	readyDone := make(chan struct{})
	var gotReply wire.HandshakeReply
	replyDone := make(chan struct{})

	sess := NewSession("client-1", ln.Addr().String(), suite, testLogger{t}, 0, nil, Callbacks{
		OnHandshakeReply: func(hr wire.HandshakeReply) {
			gotReply = hr
			close(replyDone)
		},
	})
	sess.Start(t.Context(), func(err error) {
		readyErr = err
		close(readyDone)
	})
	t.Cleanup(func() { _ = sess.Close() })

	select {
	case <-readyDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready callback")
	}
	require.NoError(t, readyErr)

	select {
	case <-replyDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnHandshakeReply")
	}
	require.Equal(t, "10.0.0.2", gotReply.PrivateIP)
	require.Len(t, gotReply.PeerDetails, 1)
	require.Equal(t, []string{"10.0.2.0/24"}, gotReply.PeerDetails[0].Ciders)

	require.Eventually(t, func() bool {
		return gotHandshake.Load() != nil
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "client-1", gotHandshake.Load().Identity)

	require.NoError(t, sess.SendData([]byte{0x45, 0x00}))
}

func TestSession_SendDataBeforeConnectedFails(t *testing.T) {
	suite := mustPlainSuite(t)
	sess := NewSession("client-1", "127.0.0.1:0", suite, testLogger{t}, 0, nil, Callbacks{})
	require.ErrorIs(t, sess.SendData([]byte{1}), ErrNotConnected)
}

func TestSession_SendDataAfterCloseFails(t *testing.T) {
	suite := mustPlainSuite(t)
	sess := NewSession("client-1", "127.0.0.1:0", suite, testLogger{t}, 0, nil, Callbacks{})
	require.NoError(t, sess.Close())
	require.ErrorIs(t, sess.SendData([]byte{1}), ErrClosed)
}

func TestSession_DialFailureFiresReadyCbError(t *testing.T) {
	suite := mustPlainSuite(t)

	var closedCount atomic.Int32
	var readyErr error
	done := make(chan struct{})

	sess := NewSession("client-1", "127.0.0.1:1", suite, testLogger{t}, 0, nil, Callbacks{
		OnClosed: func() { closedCount.Add(1) },
	})
	sess.Start(t.Context(), func(err error) {
		readyErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready callback")
	}
	require.Error(t, readyErr)
	require.Equal(t, int32(1), closedCount.Load())
}

func TestSession_KeepAliveUsesSelfAdvertisement(t *testing.T) {
	ln := listen(t)
	suite := mustPlainSuite(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	keepAliveGot := make(chan wire.KeepAlive, 1)
	go func() {
		conn := <-accepted
		defer conn.Close()

		buf := make([]byte, 4096)
		n, err := conn.Read(buf) // Handshake
		if err != nil {
			return
		}
		_ = n

		reply := wire.HandshakeReply{PrivateIP: "10.0.0.2", Mask: "24", Gateway: "10.0.0.1"}
		out, err := codec.EncodeJSON(frame.HandshakeReply, reply, suite)
		require.NoError(t, err)
		_, _ = conn.Write(out)

		n, err = conn.Read(buf) // KeepAlive
		if err != nil {
			return
		}
		var ka wire.KeepAlive
		kind, _, derr := codec.DecodeJSON(buf[:n], suite, &ka)
		if derr == nil && kind == frame.KeepAlive {
			keepAliveGot <- ka
		}
	}()

	sess := NewSession("client-9", ln.Addr().String(), suite, testLogger{t}, 20*time.Millisecond,
		func() SelfAdvertisement {
			return SelfAdvertisement{IPv6: "fd00::1", UDPPort: 51820}
		}, Callbacks{})
	sess.Start(t.Context(), func(error) {})
	t.Cleanup(func() { _ = sess.Close() })

	select {
	case ka := <-keepAliveGot:
		require.Equal(t, "client-9", ka.Identity)
		require.Equal(t, "fd00::1", ka.IPv6)
		require.EqualValues(t, 51820, ka.Port)
		require.Empty(t, ka.PeerDetails)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for keepalive frame")
	}
}

func TestSession_CloseIsIdempotentAndFiresOnClosedOnce(t *testing.T) {
	ln := listen(t)
	suite := mustPlainSuite(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf)
		reply := wire.HandshakeReply{PrivateIP: "10.0.0.2", Mask: "24", Gateway: "10.0.0.1"}
		out, _ := codec.EncodeJSON(frame.HandshakeReply, reply, suite)
		_, _ = conn.Write(out)
		_, _ = conn.Read(buf)
	}()

	var closedCount atomic.Int32
	sess := NewSession("client-1", ln.Addr().String(), suite, testLogger{t}, 0, nil, Callbacks{
		OnClosed: func() { closedCount.Add(1) },
	})
	ready := make(chan struct{})
	sess.Start(t.Context(), func(error) { close(ready) })

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready callback")
	}

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	require.Equal(t, int32(1), closedCount.Load())
}
