package peer

import (
	"net/netip"
	"testing"
	"time"
)

func TestTable_Rewrite_ReplacesWholeSet(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert([]Entry{{Identity: "stale", PrivateIP: "10.0.0.9"}})

	entries := []Entry{
		{Identity: "p1", PrivateIP: "10.0.0.1"},
		{Identity: "p2", PrivateIP: "10.0.0.2"},
	}
	tbl.Rewrite(entries)

	got := tbl.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries after rewrite, got %d", len(got))
	}
	if _, ok := tbl.Get("stale"); ok {
		t.Fatal("expected stale entry to be gone after rewrite")
	}
}

func TestTable_Upsert_NewIdentityHasNoLiveness(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert([]Entry{{Identity: "p1", IPv6: "fd00::1", UDPPort: 51820}})

	e, ok := tbl.Get("p1")
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if !e.LastRX.IsZero() {
		t.Fatal("expected new identity to have no proved liveness")
	}
}

func TestTable_Upsert_IPv6ChangeResetsLiveness(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Rewrite([]Entry{{Identity: "p1", IPv6: "fd00::1", UDPPort: 51820}})
	tbl.OnProbeReceived("p1", netip.MustParseAddrPort("[fd00::1]:51820"), now)

	if !tbl.IsActive("p1", now) {
		t.Fatal("expected p1 to be active before the address change")
	}

	tbl.Upsert([]Entry{{Identity: "p1", IPv6: "fd00::2", UDPPort: 51820}})

	e, _ := tbl.Get("p1")
	if !e.LastRX.IsZero() {
		t.Fatal("expected liveness to reset after ipv6 change")
	}
	if e.LastRemoteAddr.IsValid() {
		t.Fatal("expected last remote addr to reset after ipv6 change")
	}
}

func TestTable_Upsert_SameIPv6PreservesLiveness(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Rewrite([]Entry{{Identity: "p1", IPv6: "fd00::1", UDPPort: 51820}})
	tbl.OnProbeReceived("p1", netip.MustParseAddrPort("[fd00::1]:51820"), now)

	tbl.Upsert([]Entry{{Identity: "p1", IPv6: "fd00::1", UDPPort: 51820, PrivateIP: "10.0.0.1"}})

	e, _ := tbl.Get("p1")
	if e.LastRX.IsZero() {
		t.Fatal("expected liveness to survive an upsert with an unchanged ipv6")
	}
	if e.PrivateIP != "10.0.0.1" {
		t.Fatal("expected other fields to still be overwritten")
	}
}

func TestTable_IsActive_Threshold(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Rewrite([]Entry{{Identity: "p1", IPv6: "fd00::1", UDPPort: 51820}})
	tbl.OnProbeReceived("p1", netip.MustParseAddrPort("[fd00::1]:51820"), now.Add(-14*time.Second))

	if !tbl.IsActive("p1", now) {
		t.Fatal("expected active at 14s")
	}

	tbl.OnProbeReceived("p1", netip.MustParseAddrPort("[fd00::1]:51820"), now.Add(-16*time.Second))
	if tbl.IsActive("p1", now) {
		t.Fatal("expected inactive at 16s")
	}
}

func TestTable_FindByDestinationIP_ExactMatchWins(t *testing.T) {
	tbl := NewTable()
	tbl.Rewrite([]Entry{
		{Identity: "p1", PrivateIP: "10.0.0.1", CIDRs: []string{"10.0.0.0/24"}},
		{Identity: "p2", PrivateIP: "10.0.1.1", CIDRs: []string{"10.0.1.0/24"}},
	})

	got, ok := tbl.FindByDestinationIP(netip.MustParseAddr("10.0.0.1"))
	if !ok || got.Identity != "p1" {
		t.Fatalf("expected exact match p1, got %+v ok=%v", got, ok)
	}
}

func TestTable_FindByDestinationIP_CIDRMatch(t *testing.T) {
	tbl := NewTable()
	tbl.Rewrite([]Entry{
		{Identity: "p2", PrivateIP: "10.0.1.1", CIDRs: []string{"10.0.1.0/24"}},
	})

	got, ok := tbl.FindByDestinationIP(netip.MustParseAddr("10.0.1.5"))
	if !ok || got.Identity != "p2" {
		t.Fatalf("expected cidr match p2, got %+v ok=%v", got, ok)
	}
}

func TestTable_FindByDestinationIP_NotFound(t *testing.T) {
	tbl := NewTable()
	tbl.Rewrite([]Entry{{Identity: "p1", PrivateIP: "10.0.0.1"}})

	_, ok := tbl.FindByDestinationIP(netip.MustParseAddr("203.0.113.1"))
	if ok {
		t.Fatal("expected no match")
	}
}

func TestEntry_ReadyForP2P(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		e    Entry
		want bool
	}{
		{"never proved alive", Entry{IPv6: "fd00::1", UDPPort: 1}, false},
		{"within threshold", Entry{IPv6: "fd00::1", UDPPort: 1, LastRX: now.Add(-2 * time.Second)}, true},
		{"past threshold", Entry{IPv6: "fd00::1", UDPPort: 1, LastRX: now.Add(-30 * time.Second)}, false},
		{"no ipv6", Entry{UDPPort: 1, LastRX: now.Add(-time.Second)}, false},
		{"no port", Entry{IPv6: "fd00::1", LastRX: now.Add(-time.Second)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.e.ReadyForP2P(now); got != tc.want {
				t.Fatalf("ReadyForP2P() = %v, want %v", got, tc.want)
			}
		})
	}
}
