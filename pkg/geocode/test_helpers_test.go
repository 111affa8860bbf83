package geocode

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

// newTestClient returns a geocoder pointed at a test server with no rate limit.
func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *geocoder {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	g := NewClient(append([]Option{WithBaseURL(srv.URL)}, opts...)...).(*geocoder)
	g.limiter = rate.NewLimiter(rate.Inf, 1)
	return g
}
