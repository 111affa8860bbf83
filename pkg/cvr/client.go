// Package cvr looks up Danish company names by CVR number.
package cvr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/aak-rpa/henstilling-sync/internal/resilience"
)

const (
	defaultBaseURL   = "https://cvrapi.dk"
	defaultUserAgent = "Henstillinger AAK"
)

// Client resolves company display names.
type Client interface {
	// LookupName returns the registered name for cvr, or "" when the
	// registry has no such company.
	LookupName(ctx context.Context, cvr string) (string, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the registry base URL.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.httpClient.Timeout = d }
}

// WithUserAgent sets the product-identifying User-Agent the registry requires.
func WithUserAgent(ua string) Option {
	return func(c *client) { c.userAgent = ua }
}

// WithCountry sets the registry country code.
func WithCountry(country string) Option {
	return func(c *client) { c.country = country }
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the number of attempts for transient failures.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *client) {
		c.retry.MaxAttempts = maxAttempts
		c.retry.Backoff = backoff
	}
}

// WithBreaker guards requests with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *client) { c.breaker = cb }
}

type client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	country    string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a registry Client.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		country:    "dk",
		limiter:    rate.NewLimiter(2, 2),
		retry: resilience.RetryConfig{
			MaxAttempts: 2,
			Backoff:     500 * time.Millisecond,
			Service:     "cvr",
			Operation:   "lookup_name",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type companyResponse struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func (c *client) LookupName(ctx context.Context, cvr string) (string, error) {
	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
			return c.lookup(ctx, cvr)
		})
	})
}

func (c *client) lookup(ctx context.Context, cvr string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "cvr: rate limit")
	}

	params := url.Values{
		"country": {c.country},
		"search":  {cvr},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api?"+params.Encode(), nil)
	if err != nil {
		return "", eris.Wrap(err, "cvr: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "cvr: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", resilience.StatusError("cvr", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "cvr: read body")
	}

	var cr companyResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", eris.Wrap(err, "cvr: parse response")
	}
	if cr.Error != "" {
		return "", nil
	}
	return strings.TrimSpace(cr.Name), nil
}
