// Package geo detects placeholder coordinates and repairs them by geocoding
// the case address.
package geo

import (
	"math"

	"github.com/aak-rpa/henstilling-sync/internal/model"
)

// earthRadiusM is the mean Earth radius in meters.
const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b model.Coordinate) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
