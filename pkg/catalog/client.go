// Package catalog provides a client for the Planet basemaps catalog API:
// mosaic name resolution and bounding-box-filtered quad listings.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/basemapper/basemapper/pkg/area"
)

const (
	// DefaultBaseURL is the Planet basemaps mosaics endpoint.
	DefaultBaseURL = "https://api.planet.com/basemaps/v1/mosaics"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 60 * time.Second
)

// ErrNoMosaic is returned by ResolveMosaic when the catalog has no mosaic
// with the requested name. Callers treat it as a soft failure and skip the
// window.
var ErrNoMosaic = errors.New("no mosaic with that name")

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the catalog client.
type ClientConfig struct {
	// APIKey authenticates every request as the basic-auth username with
	// an empty password (required).
	APIKey string

	// BaseURL is the mosaics endpoint (optional, defaults to the Planet API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional). If nil, a plain
	// client with DefaultTimeout is used.
	HTTPClient HTTPDoer

	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a basemaps catalog client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new catalog client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// ResolveMosaic looks up a mosaic by exact name and returns its catalog ID.
// Returns ErrNoMosaic when the catalog has no match.
func (c *Client) ResolveMosaic(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s?%s", c.baseURL, url.Values{"name__is": {name}}.Encode())

	var resp mosaicsResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return "", fmt.Errorf("resolve mosaic %q: %w", name, err)
	}

	if len(resp.Mosaics) == 0 {
		return "", fmt.Errorf("resolve mosaic %q: %w", name, ErrNoMosaic)
	}

	id := resp.Mosaics[0].ID
	c.logger.Debug().Str("mosaic_name", name).Str("mosaic_id", id).Msg("resolved mosaic")
	return id, nil
}

// Quads returns a pager over the quads of a mosaic intersecting bbox.
// The bbox filter is sent only on the first request; continuation URLs are
// assumed self-contained and followed verbatim.
func (c *Client) Quads(mosaicID string, bbox area.BBox) *QuadPager {
	first := fmt.Sprintf("%s/%s/quads?%s", c.baseURL, mosaicID, url.Values{
		"bbox":    {bbox.String()},
		"minimal": {"true"},
	}.Encode())

	return &QuadPager{client: c, next: first}
}

// ListQuads materializes all pages of a mosaic's quad listing.
func (c *Client) ListQuads(ctx context.Context, mosaicID string, bbox area.BBox) ([]Quad, error) {
	pager := c.Quads(mosaicID, bbox)

	var quads []Quad
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("list quads for mosaic %s: %w", mosaicID, err)
		}
		if page == nil {
			break
		}
		quads = append(quads, page...)
	}

	c.logger.Debug().Str("mosaic_id", mosaicID).Int("quad_count", len(quads)).Msg("listed quads")
	return quads, nil
}

// QuadPager walks a mosaic's quad listing one page at a time, following
// server-supplied continuation links until none remains.
type QuadPager struct {
	client *Client
	next   string
	pages  int
}

// Next fetches the next page of quads. It returns (nil, nil) once the
// listing is exhausted.
func (p *QuadPager) Next(ctx context.Context) ([]Quad, error) {
	if p.next == "" {
		return nil, nil
	}

	var resp quadsResponse
	if err := p.client.get(ctx, p.next, &resp); err != nil {
		return nil, fmt.Errorf("quad page %d: %w", p.pages+1, err)
	}
	p.pages++
	p.next = resp.Links.Next

	quads := make([]Quad, 0, len(resp.Items))
	for _, item := range resp.Items {
		quads = append(quads, Quad{ID: item.ID, DownloadURL: item.Links.Download})
	}
	return quads, nil
}

// Pages returns how many pages have been fetched so far.
func (p *QuadPager) Pages() int {
	return p.pages
}
