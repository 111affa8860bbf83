package geo

import (
	"context"

	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/model"
	"github.com/aak-rpa/henstilling-sync/pkg/geocode"
)

// DefaultDepot is the municipal depot the portal falls back to when a case
// has no real site location.
var DefaultDepot = model.Coordinate{Lat: 56.161147, Lon: 10.13455}

// DefaultThresholdM is the depot distance at or under which a coordinate is
// treated as a placeholder.
const DefaultThresholdM = 100.0

// Outcome describes what the corrector did with a coordinate.
type Outcome string

const (
	OutcomeKept      Outcome = "kept"      // coordinate is plausibly real
	OutcomeCorrected Outcome = "corrected" // placeholder replaced by geocoding
	OutcomeGeocoded  Outcome = "geocoded"  // missing coordinate filled by geocoding
	OutcomeDegraded  Outcome = "degraded"  // placeholder kept, geocoding gave nothing
	OutcomeMissing   Outcome = "missing"   // no coordinate and geocoding gave nothing
)

// Correction is the result of Correct. Coord is nil only when the input had
// no coordinate and geocoding failed. Reason is set for degraded outcomes.
type Correction struct {
	Coord   *model.Coordinate
	Outcome Outcome
	Reason  string
}

// Corrector repairs depot-placeholder coordinates.
type Corrector struct {
	geocoder   geocode.Client
	depot      model.Coordinate
	thresholdM float64
}

// CorrectorOption configures a Corrector.
type CorrectorOption func(*Corrector)

// WithDepot sets the reference depot location.
func WithDepot(c model.Coordinate) CorrectorOption {
	return func(cr *Corrector) { cr.depot = c }
}

// WithThreshold sets the placeholder distance in meters.
func WithThreshold(m float64) CorrectorOption {
	return func(cr *Corrector) {
		if m > 0 {
			cr.thresholdM = m
		}
	}
}

// NewCorrector creates a Corrector. A nil geocoder disables repairs; every
// suspect coordinate is then kept.
func NewCorrector(gc geocode.Client, opts ...CorrectorOption) *Corrector {
	c := &Corrector{geocoder: gc, depot: DefaultDepot, thresholdM: DefaultThresholdM}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Correct returns the coordinate to store for a case. Coordinates further than
// the threshold from the depot are returned unchanged. Coordinates near the
// depot, and missing coordinates, are replaced by the geocoded address when
// the geocoder finds one. Geocoding failures never surface as errors.
func (c *Corrector) Correct(ctx context.Context, address string, coord *model.Coordinate) Correction {
	if coord != nil && Haversine(*coord, c.depot) > c.thresholdM {
		return Correction{Coord: coord, Outcome: OutcomeKept}
	}

	found, reason := c.lookup(ctx, address)
	switch {
	case found != nil && coord != nil:
		return Correction{Coord: found, Outcome: OutcomeCorrected}
	case found != nil:
		return Correction{Coord: found, Outcome: OutcomeGeocoded}
	case coord != nil:
		return Correction{Coord: coord, Outcome: OutcomeDegraded, Reason: reason}
	default:
		return Correction{Outcome: OutcomeMissing, Reason: reason}
	}
}

// lookup geocodes the cleaned address. On failure it returns a short reason.
func (c *Corrector) lookup(ctx context.Context, address string) (*model.Coordinate, string) {
	if c.geocoder == nil {
		return nil, "geocoder disabled"
	}
	cleaned, ok := CleanAddress(address)
	if !ok {
		return nil, "address has no street and number"
	}

	res, err := c.geocoder.Geocode(ctx, cleaned)
	if err != nil {
		zap.L().Info("geocode failed, keeping coordinate",
			zap.String("address", cleaned),
			zap.Error(err),
		)
		return nil, "geocode error"
	}
	if res == nil || !res.Matched {
		return nil, "no geocode match"
	}
	return &model.Coordinate{Lat: res.Latitude, Lon: res.Longitude}, ""
}
