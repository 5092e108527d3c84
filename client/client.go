// Package client wires the data-plane components (control session,
// reconnect supervisor, peer table, P2P service, discoverer, dispatcher,
// route manager, stats collector, crypto suite, frame codec) into a single
// runnable unit.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"meshcore/application"
	"meshcore/domain"
	"meshcore/domain/peer"
	"meshcore/domain/sessionstate"
	"meshcore/domain/wire"
	"meshcore/infrastructure/config"
	"meshcore/infrastructure/control"
	"meshcore/infrastructure/crypto"
	"meshcore/infrastructure/discovery"
	"meshcore/infrastructure/dispatch"
	"meshcore/infrastructure/p2p"
	"meshcore/infrastructure/routing"
	"meshcore/infrastructure/stats"
)

const tunReadBufferSize = 1 << 16

// Client owns every component for the lifetime of one run. Build with New,
// then call Run, which blocks until ctx is canceled or a fatal error
// occurs in the TUN read loop or the P2P service.
type Client struct {
	logger application.Logger
	tun    application.TunDevice

	table      *peer.Table
	collector  *stats.Collector
	routeMgr   *routing.Manager
	discoverer *discovery.Discoverer
	p2pSvc     *p2p.Service
	dispatcher *dispatch.Dispatcher
	supervisor *control.Supervisor
}

// New builds every component and wires their callbacks together, but
// starts nothing: call Run to begin connecting.
func New(cfg *config.Config, tun application.TunDevice, probe application.PublicIPv6Probe, logger application.Logger) (*Client, error) {
	suite, err := crypto.FromConfig(cfg.CryptoConfig)
	if err != nil {
		return nil, fmt.Errorf("client: crypto config: %w", err)
	}

	table := peer.NewTable()
	collector := stats.NewCollector(table)
	routeMgr := routing.NewManager(tun, logger)

	p2pSvc, err := p2p.NewService(cfg.Identity, suite, logger, table, nil, p2p.Port)
	if err != nil {
		return nil, fmt.Errorf("client: p2p service: %w", err)
	}

	c := &Client{
		logger:    logger,
		tun:       tun,
		table:     table,
		collector: collector,
		routeMgr:  routeMgr,
		p2pSvc:    p2pSvc,
	}

	c.discoverer = discovery.NewDiscoverer(probe, logger, c.onIPv6Changed)

	addr := net.JoinHostPort(cfg.ServerAddress, fmt.Sprintf("%d", cfg.ServerPort))
	c.supervisor = control.NewSupervisor(func(onClosed func()) *control.Session {
		c.collector.SetState(sessionstate.Connecting)
		return control.NewSession(cfg.Identity, addr, suite, logger, cfg.KeepAliveInterval(), c.selfAdvertisement, control.Callbacks{
			OnHandshakeReply: c.onHandshakeReply,
			OnDataFrame:      c.dispatcher.DeliverInbound,
			OnKeepAlive:      c.onKeepAlive,
			OnClosed:         func() { c.collector.SetState(sessionstate.Reconnect); onClosed() },
		})
	}, logger)

	// The dispatcher is built after the supervisor so it can hold the
	// supervisor's stable Handle; OnDataFrame/OnHandshakeReply above read
	// c.dispatcher through the closure at call time, once Start() runs, so
	// this ordering introduces no nil-pointer window.
	c.dispatcher = dispatch.NewDispatcher(table, p2pSvc, c.supervisor.Handle(), tun, &collector.Counters, logger)
	p2pSvc.SetSink(c.dispatcher)

	return c, nil
}

// Run drives every background task: the control supervisor's first
// connect attempt, the P2P service, the discoverer, and the TUN read loop
// that feeds the dispatcher. It returns when ctx is canceled or the TUN
// read loop / P2P service hits a fatal error.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.p2pSvc.Run(gctx) })
	g.Go(func() error { c.discoverer.Run(gctx); return nil })
	g.Go(func() error { return c.readTunLoop(gctx) })

	c.supervisor.Start()

	go func() {
		<-gctx.Done()
		_ = c.supervisor.Close()
		_ = c.p2pSvc.Close()
		// Unblocks a tun-reader task suspended in ReadPacket.
		_ = c.tun.Close()
	}()

	err := g.Wait()
	c.collector.SetState(sessionstate.Closed)
	return err
}

// Observer exposes the stats collector for whatever host-side mechanism
// queries this client; the IPC wire format is the host's concern.
func (c *Client) Observer() application.Observer { return c.collector }

// PrometheusExporter builds the optional Prometheus export surface,
// additive to (never a replacement for) the Observer snapshot.
func (c *Client) PrometheusExporter() *stats.PrometheusExporter {
	return stats.NewPrometheusExporter(c.collector)
}

func (c *Client) readTunLoop(ctx context.Context) error {
	buf := make([]byte, tunReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := c.tun.ReadPacket(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: tun read: %w", err)
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		if err := c.dispatcher.DispatchOutbound(packet); err != nil && c.logger != nil {
			c.logger.Printf("client: dispatch outbound: %v", err)
		}
	}
}

func (c *Client) selfAdvertisement() control.SelfAdvertisement {
	return control.SelfAdvertisement{
		IPv6:    c.discoverer.Current(),
		UDPPort: c.p2pSvc.LocalPort(),
	}
}

// onIPv6Changed exists because Discoverer requires an onChange callback;
// the keepalive task reads discoverer.Current() directly on every tick, so
// no immediate push is needed here.
func (c *Client) onIPv6Changed(string) {}

func (c *Client) onHandshakeReply(hr wire.HandshakeReply) {
	c.collector.SetVirtualIP(hr.PrivateIP)
	c.collector.SetState(sessionstate.Connected)
	c.collector.MarkConnected(time.Now())

	entries := make([]peer.Entry, 0, len(hr.PeerDetails))
	for _, pd := range hr.PeerDetails {
		entries = append(entries, peerEntryFromDetail(pd))
	}
	c.table.Rewrite(entries)

	if err := c.routeMgr.SetLocal(hr.PrivateIP, hr.Mask, hr.Gateway); err != nil {
		if c.logger != nil {
			c.logger.Printf("client: set local network settings: %v", err)
		}
		return
	}
	if err := c.routeMgr.Sync(entries); err != nil && c.logger != nil {
		c.logger.Printf("client: sync routes after handshake reply: %v", err)
	}
}

func (c *Client) onKeepAlive(ka wire.KeepAlive) {
	if len(ka.PeerDetails) == 0 {
		return
	}
	entries := make([]peer.Entry, 0, len(ka.PeerDetails))
	for _, pd := range ka.PeerDetails {
		entries = append(entries, peerEntryFromDetail(pd))
	}
	c.table.Upsert(entries)
	if err := c.routeMgr.Sync(c.table.Snapshot()); err != nil && c.logger != nil {
		c.logger.Printf("client: sync routes after keepalive: %v", err)
	}
}

func peerEntryFromDetail(pd wire.PeerDetail) peer.Entry {
	return peer.Entry{
		Identity:  domain.Identity(pd.Identity),
		PrivateIP: pd.PrivateIP,
		CIDRs:     pd.Ciders,
		IPv6:      pd.IPv6,
		UDPPort:   pd.Port,
		StunIP:    pd.StunIP,
		StunPort:  pd.StunPort,
	}
}
