package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/albertbeaupre/full-stack-infrastructure-sub001/internal/server"
)

const defaultProbeTimeout = 5 * time.Second

// HTTPProber checks a server by sending an HTTP GET to its /health endpoint.
// The server is healthy when the endpoint answers 200 within the client
// timeout. It is the default collaborator injected into the balancer; any
// other probing mechanism can be swapped in behind the balancer's Prober
// interface.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober with the given per-probe timeout.
// Non-positive timeouts fall back to 5 seconds.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Probe sends the health request. A transport error or non-200 status means
// unhealthy; only transport errors are returned as errors.
func (p *HTTPProber) Probe(ctx context.Context, node *server.Node) (bool, error) {
	healthURL := fmt.Sprintf("http://%s/health", node.Addr())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false, err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}
