// Package feed provides the HTTP client for the upstream regulatory feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/RxMesh/PharmaCore/internal/config"
	"github.com/RxMesh/PharmaCore/internal/domain"
	"github.com/RxMesh/PharmaCore/internal/port/upstream"
	"github.com/RxMesh/PharmaCore/internal/resilience"
)

// Client implements upstream.Feed against the feed's HTTP API. All fetch
// failures are surfaced as domain.ErrUpstreamUnavailable: nothing has been
// merged yet, so the whole run is retriable.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a feed client from upstream configuration.
func NewClient(cfg config.Upstream) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// FetchProducts pulls the full catalog snapshot. Each item retains its raw
// payload for audit alongside the projected fields.
func (c *Client) FetchProducts(ctx context.Context) ([]upstream.Product, error) {
	data, err := c.doRequest(ctx, "/api/v1/products")
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("fetch products: decode snapshot: %w: %w", err, domain.ErrUpstreamUnavailable)
	}

	products := make([]upstream.Product, 0, len(raws))
	for _, raw := range raws {
		var p upstream.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("fetch products: decode item: %w: %w", err, domain.ErrUpstreamUnavailable)
		}
		p.Raw = raw
		products = append(products, p)
	}
	return products, nil
}

// FetchPartners pulls the full partner-registry snapshot.
func (c *Client) FetchPartners(ctx context.Context) ([]upstream.Partner, error) {
	data, err := c.doRequest(ctx, "/api/v1/partners")
	if err != nil {
		return nil, fmt.Errorf("fetch partners: %w", err)
	}

	var partners []upstream.Partner
	if err := json.Unmarshal(data, &partners); err != nil {
		return nil, fmt.Errorf("fetch partners: decode snapshot: %w: %w", err, domain.ErrUpstreamUnavailable)
	}
	return partners, nil
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w: %w", err, domain.ErrUpstreamUnavailable)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w: %w", err, domain.ErrUpstreamUnavailable)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("feed API error %d: %s: %w", resp.StatusCode, string(data), domain.ErrUpstreamUnavailable)
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Do(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
