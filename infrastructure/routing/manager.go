// Package routing implements the route manager: it diffs the CIDR set
// derived from the current roster against the last applied set and pushes
// updated network settings to the TunDevice only when something changed.
package routing

import (
	"fmt"
	"sync"
	"sync/atomic"

	"meshcore/application"
	"meshcore/domain/netsettings"
	"meshcore/domain/peer"
)

// Manager serializes route updates: a new ApplyNetworkSettings call is
// never issued until the previous call has returned, matching the
// "route updates are serialized" ordering guarantee.
type Manager struct {
	mu     sync.Mutex
	tun    application.TunDevice
	logger application.Logger

	haveLocal bool
	applied   netsettings.Settings

	appliedCount atomic.Uint64
	skippedCount atomic.Uint64
}

func NewManager(tun application.TunDevice, logger application.Logger) *Manager {
	return &Manager{tun: tun, logger: logger}
}

// SetLocal records the tunnel's own address/mask/gateway. Set once, from
// the first HandshakeReply; once a call has succeeded, later calls (from the
// handshake replies of reconnected sessions) change nothing.
func (m *Manager) SetLocal(localIP, rawMask, gateway string) error {
	mask, err := NormalizeMask(rawMask)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.haveLocal {
		return nil
	}
	m.applied.LocalIP = localIP
	m.applied.Mask = mask
	m.applied.Gateway = gateway
	m.haveLocal = true
	return nil
}

// Sync derives cidrs = union(peer.cidrs) and applies the new network
// settings only if the CIDR set changed since the last apply. Returns nil
// without calling the TunDevice when nothing changed.
func (m *Manager) Sync(peers []peer.Entry) error {
	sets := make([][]string, 0, len(peers))
	for _, p := range peers {
		sets = append(sets, p.CIDRs)
	}
	cidrs := netsettings.Union(sets)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.haveLocal {
		return fmt.Errorf("routing: SetLocal must be called before Sync")
	}

	added, removed := netsettings.Diff(m.applied.CIDRs, cidrs)
	if len(added) == 0 && len(removed) == 0 {
		m.skippedCount.Add(1)
		return nil
	}

	next := m.applied
	next.CIDRs = cidrs
	if err := m.tun.ApplyNetworkSettings(next); err != nil {
		if m.logger != nil {
			m.logger.Printf("routing: apply failed, will retry on next roster update: %v", err)
		}
		return err
	}
	m.applied = next
	m.appliedCount.Add(1)
	return nil
}

func (m *Manager) AppliedCount() uint64 { return m.appliedCount.Load() }
func (m *Manager) SkippedCount() uint64 { return m.skippedCount.Load() }
