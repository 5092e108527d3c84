package discovery

import (
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoints is the documented default endpoint list. Callers
// building an HTTPProbe for production should supply their own operator-
// controlled list; these are a reasonable default for development.
var DefaultEndpoints = []string{
	"https://api6.ipify.org",
	"https://v6.ident.me",
	"https://ifconfig.co",
}

const fetchTimeout = 5 * time.Second

// HTTPProbe is the reference application.PublicIPv6Probe: it queries each
// endpoint in order over plain net/http GET and returns their text
// bodies. It lives outside the core (the core only consumes the
// interface) exactly as the reference TunDevice lives outside the core.
type HTTPProbe struct {
	Endpoints []string
	Client    *http.Client
}

func NewHTTPProbe(endpoints []string) *HTTPProbe {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	return &HTTPProbe{
		Endpoints: endpoints,
		Client:    &http.Client{Timeout: fetchTimeout},
	}
}

func (p *HTTPProbe) FetchCandidates(ctx context.Context) ([]string, error) {
	var candidates []string
	for _, endpoint := range p.Endpoints {
		body, err := p.fetch(ctx, endpoint)
		if err != nil {
			continue
		}
		candidates = append(candidates, body)
	}
	return candidates, nil
}

func (p *HTTPProbe) fetch(ctx context.Context, endpoint string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
