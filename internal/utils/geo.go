package utils

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/jagawarga/jagawarga/internal/pkg/models"
)

// GeohashPrecision is the precision used when tagging published locations.
// Eight characters is roughly a 38m x 19m cell.
const GeohashPrecision = 8

// EncodeLocation converts a coordinate to a geohash string
func EncodeLocation(coord models.Coordinate, precision uint) string {
	return geohash.EncodeWithPrecision(coord.Latitude, coord.Longitude, precision)
}

// DecodeGeohash converts a geohash string to latitude and longitude
func DecodeGeohash(hash string) (latitude, longitude float64) {
	return geohash.Decode(hash)
}

// CalculateDistance calculates the distance between two coordinates in meters
// using the Haversine formula.
func CalculateDistance(a, b models.Coordinate) float64 {
	// Earth's radius in meters
	const earthRadius = 6371000.0

	lat1 := a.Latitude * math.Pi / 180.0
	lon1 := a.Longitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	lon2 := b.Longitude * math.Pi / 180.0

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}

// ValidateCoordinate rejects latitudes and longitudes outside their ranges.
func ValidateCoordinate(coord models.Coordinate) error {
	if coord.Latitude < -90 || coord.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", coord.Latitude)
	}
	if coord.Longitude < -180 || coord.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", coord.Longitude)
	}
	return nil
}

// DirectionURL builds a Google Maps directions link to the given coordinate,
// the same link the mobile client opened for a case.
func DirectionURL(latitude, longitude float64) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%f,%f", latitude, longitude)
}
