// Package geocode resolves free-text street addresses to coordinates through
// a Nominatim-compatible search API, scoped to a fixed city and country.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/aak-rpa/henstilling-sync/internal/resilience"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "AarhusRoutePlanner/1.0 (aarhuskommune.dk)"
)

// Client geocodes a single address.
type Client interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the first match for an address. Matched is false when the
// service answered but found nothing.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Matched     bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		g.httpClient.Timeout = d
	}
}

// WithRateLimit sets the requests-per-second limit. The public Nominatim
// usage policy allows at most one request per second.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the identifying User-Agent header.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithArea appends city and country to every query.
func WithArea(city, country string) Option {
	return func(g *geocoder) {
		g.city = city
		g.country = country
	}
}

// WithBreaker guards requests with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(g *geocoder) {
		g.breaker = cb
	}
}

type geocoder struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	city       string
	country    string
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

// NewClient creates a geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		city:       "Aarhus",
		country:    "Denmark",
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the first match for address within the configured area.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return &Result{Matched: false}, nil
	}
	return resilience.Execute(ctx, g.breaker, func(ctx context.Context) (*Result, error) {
		return g.search(ctx, address)
	})
}

func (g *geocoder) search(ctx context.Context, address string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"q":      {g.query(address)},
		"format": {"json"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("geocode", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var hits []searchHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(hits) == 0 {
		return &Result{Matched: false}, nil
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse lat %q", hits[0].Lat)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse lon %q", hits[0].Lon)
	}
	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: hits[0].DisplayName,
		Matched:     true,
	}, nil
}

// query builds the free-text search string, e.g. "Vestergade 12, Aarhus, Denmark".
func (g *geocoder) query(address string) string {
	parts := []string{address}
	if g.city != "" {
		parts = append(parts, g.city)
	}
	if g.country != "" {
		parts = append(parts, g.country)
	}
	return strings.Join(parts, ", ")
}
