// Package discovery fetches candidates from a JSON endpoint that returns one
// random item per request.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/meigma/swipe/feed"
)

// Defaults for a Client.
const (
	DefaultEndpoint = "https://cataas.com/cat?json=true"
	DefaultTimeout  = 15 * time.Second
	DefaultSource   = "cataas"

	maxResponseBytes = 1 << 20
)

// Client calls the discovery endpoint once per Next.
// It is safe for concurrent use.
type Client struct {
	endpoint *url.URL
	client   *http.Client
	timeout  time.Duration
	limiter  *rate.Limiter // nil means unlimited
	source   string
	logger   *slog.Logger
}

var _ feed.Discovery = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithEndpoint sets the discovery endpoint. It must be an absolute URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) error {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("parse endpoint: %w", err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("endpoint %q is not absolute", endpoint)
		}
		c.endpoint = u
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("http client is nil")
		}
		c.client = client
		return nil
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("timeout must be >= 0")
		}
		c.timeout = d
		return nil
	}
}

// WithRateLimit limits requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) error {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(r, burst)
		return nil
	}
}

// WithSource sets the source label attached to candidates.
func WithSource(source string) Option {
	return func(c *Client) error {
		c.source = source
		return nil
	}
}

// WithLogger sets the logger. If nil, a discard logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		source:  DefaultSource,
	}
	if err := WithEndpoint(DefaultEndpoint)(c); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// item is the endpoint's response body. Some deployments name the id "_id".
type item struct {
	ID    string `json:"id"`
	AltID string `json:"_id"`
	URL   string `json:"url"`
}

// Next requests one candidate. Every failure matches feed.ErrDiscovery.
func (c *Client) Next(ctx context.Context) (feed.Candidate, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return feed.Candidate{}, fmt.Errorf("%w: rate limit: %w", feed.ErrDiscovery, err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return feed.Candidate{}, fmt.Errorf("%w: %w", feed.ErrDiscovery, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return feed.Candidate{}, fmt.Errorf("%w: %w", feed.ErrDiscovery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return feed.Candidate{}, fmt.Errorf("%w: server returned HTTP %d", feed.ErrDiscovery, resp.StatusCode)
	}

	var it item
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&it); err != nil {
		return feed.Candidate{}, fmt.Errorf("%w: decode response: %w", feed.ErrDiscovery, err)
	}
	cand, err := c.candidate(it)
	if err != nil {
		return feed.Candidate{}, fmt.Errorf("%w: %w", feed.ErrDiscovery, err)
	}
	c.logger.Debug("discovered candidate", "id", cand.ID, "url", cand.URL)
	return cand, nil
}

func (c *Client) candidate(it item) (feed.Candidate, error) {
	id := it.ID
	if id == "" {
		id = it.AltID
	}
	if id == "" {
		return feed.Candidate{}, errors.New("response has no id")
	}
	if it.URL == "" {
		return feed.Candidate{}, fmt.Errorf("response %s has no url", id)
	}
	ref, err := url.Parse(it.URL)
	if err != nil {
		return feed.Candidate{}, fmt.Errorf("response %s: invalid url: %w", id, err)
	}
	return feed.Candidate{
		ID:     id,
		URL:    c.endpoint.ResolveReference(ref).String(),
		Source: c.source,
	}, nil
}
