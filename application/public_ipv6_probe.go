package application

import "context"

// PublicIPv6Probe is the boundary to whatever HTTP client fetches candidate
// public addresses; the core owns the polling loop and the validation of
// what comes back, not the transport. FetchCandidates returns the raw text
// bodies of the configured endpoints, in order; the caller applies its own
// validation rules.
type PublicIPv6Probe interface {
	FetchCandidates(ctx context.Context) ([]string, error)
}
