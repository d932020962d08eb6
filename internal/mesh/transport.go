package mesh

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamware/swarm/internal/cluster"
)

// Transport delivers envelopes to remote routers. The mesh never opens
// connections itself; deployments inject whichever transport suits them.
// Implementations must be safe for concurrent use.
type Transport interface {
	Deliver(ctx context.Context, addr string, port int, env cluster.Envelope) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, addr string, port int, env cluster.Envelope) error

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, addr string, port int, env cluster.Envelope) error {
	return f(ctx, addr, port, env)
}

// NopTransport accepts every delivery without sending anything, optionally
// simulating latency. Single-process fabrics use it as the default.
type NopTransport struct {
	Latency time.Duration
}

// Deliver waits out the configured latency and reports success.
func (t NopTransport) Deliver(ctx context.Context, addr string, port int, env cluster.Envelope) error {
	if t.Latency > 0 {
		select {
		case <-time.After(t.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// HTTPTransport posts envelopes to each peer's ingest endpoint as JSON.
type HTTPTransport struct {
	// Scheme defaults to http.
	Scheme string
	// Path defaults to /gossip.
	Path string
}

// Deliver posts the envelope to the peer's ingest endpoint.
func (t HTTPTransport) Deliver(ctx context.Context, addr string, port int, env cluster.Envelope) error {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "http"
	}
	path := t.Path
	if path == "" {
		path = "/gossip"
	}
	url := fmt.Sprintf("%s://%s:%d%s", scheme, addr, port, path)
	return cluster.PostJSON(ctx, url, env, nil)
}
