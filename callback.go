package websub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway defaults.
const (
	DefaultHubURL          = "https://127.0.0.1:5102/"
	DefaultCallbackTimeout = 10 * time.Second
)

// HTTPCallbackGateway delivers payloads to subscriber callbacks over HTTP.
//
// Each delivery is a POST with Content-Type application/json and a
// Link: <hub>; rel="hub" header advertising this hub.
type HTTPCallbackGateway struct {
	client *http.Client
	hubURL string
}

// GatewayOption configures an HTTPCallbackGateway.
type GatewayOption func(*HTTPCallbackGateway)

// WithHubURL sets the URL advertised in the Link header.
func WithHubURL(url string) GatewayOption {
	return func(g *HTTPCallbackGateway) {
		if url != "" {
			g.hubURL = url
		}
	}
}

// WithCallbackTimeout sets the per-delivery HTTP timeout.
func WithCallbackTimeout(d time.Duration) GatewayOption {
	return func(g *HTTPCallbackGateway) {
		if d > 0 {
			g.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPCallbackGateway) {
		if client != nil {
			g.client = client
		}
	}
}

// NewHTTPCallbackGateway creates a gateway with a 10s timeout advertising DefaultHubURL.
func NewHTTPCallbackGateway(opts ...GatewayOption) *HTTPCallbackGateway {
	g := &HTTPCallbackGateway{
		client: &http.Client{Timeout: DefaultCallbackTimeout},
		hubURL: DefaultHubURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Deliver implements CallbackGateway.
func (g *HTTPCallbackGateway) Deliver(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeDelivery, "failed to build callback request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Link", fmt.Sprintf("<%s>; rel=\"hub\"", g.hubURL))

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeDelivery, "callback request failed", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

// IsSuccessStatus reports whether a callback status code counts as delivered.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code <= 299
}
