// Package geo implements the spherical-earth math used for goal placement
// and proximity checks.
package geo

import (
	"math"
	"math/rand/v2"

	"github.com/israelgr/High-lander-task/internal/highlander"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6_371_000.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle (haversine) distance between a and b in meters.
func Distance(a, b highlander.Coordinates) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLng := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// Rounding can push h a hair outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Destination projects a point distance meters from origin along bearing
// (radians clockwise from north).
func Destination(origin highlander.Coordinates, distance, bearing float64) highlander.Coordinates {
	lat1 := toRadians(origin.Latitude)
	lng1 := toRadians(origin.Longitude)
	ang := distance / EarthRadius

	sinLat2 := math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(bearing)
	lat2 := math.Asin(math.Min(1, math.Max(-1, sinLat2)))
	lng2 := lng1 + math.Atan2(
		math.Sin(bearing)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)

	return highlander.Coordinates{
		Latitude:  toDegrees(lat2),
		Longitude: normalizeLongitude(toDegrees(lng2)),
	}
}

// RandomPointInRadius samples a radius uniformly in [minRadius, maxRadius]
// and a bearing uniformly in [0, 2π), then projects from center.
func RandomPointInRadius(center highlander.Coordinates, minRadius, maxRadius float64) highlander.Coordinates {
	radius := minRadius + rand.Float64()*(maxRadius-minRadius)
	bearing := rand.Float64() * 2 * math.Pi
	return Destination(center, radius, bearing)
}

func normalizeLongitude(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}
