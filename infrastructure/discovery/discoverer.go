// Package discovery implements the public-IPv6 discoverer: a single task
// that refreshes the client's self-advertised IPv6 address immediately
// after startup and then every 300 seconds.
package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"meshcore/application"
)

const RefreshInterval = 300 * time.Second

// Discoverer owns the self-advertised IPv6 value read by the control
// session's keepalive task. Failure to obtain an address is non-fatal:
// the value simply stays at its last-known state (possibly empty).
type Discoverer struct {
	probe    application.PublicIPv6Probe
	logger   application.Logger
	onChange func(string)

	mu      sync.RWMutex
	current string
}

func NewDiscoverer(probe application.PublicIPv6Probe, logger application.Logger, onChange func(string)) *Discoverer {
	return &Discoverer{probe: probe, logger: logger, onChange: onChange}
}

// Current returns the current self-advertised IPv6 address, or "" if none
// has ever been discovered.
func (d *Discoverer) Current() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// Run refreshes immediately, then every RefreshInterval, until ctx is
// canceled.
func (d *Discoverer) Run(ctx context.Context) {
	d.refresh(ctx)

	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refresh(ctx)
		}
	}
}

func (d *Discoverer) refresh(ctx context.Context) {
	candidates, err := d.probe.FetchCandidates(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Printf("discovery: fetch failed, keeping last-known address: %v", err)
		}
		return
	}

	for _, c := range candidates {
		addr := strings.TrimSpace(c)
		if !ValidIPv6(addr) {
			continue
		}
		d.mu.Lock()
		changed := addr != d.current
		d.current = addr
		d.mu.Unlock()
		if changed && d.onChange != nil {
			d.onChange(addr)
		}
		return
	}
}

// ValidIPv6 rejects values with no colon, a link-local prefix, or
// loopback; anything else is accepted as advertisable.
func ValidIPv6(addr string) bool {
	if !strings.Contains(addr, ":") {
		return false
	}
	lower := strings.ToLower(addr)
	if strings.HasPrefix(lower, "fe80:") {
		return false
	}
	if lower == "::1" {
		return false
	}
	return true
}
