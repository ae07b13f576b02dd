// Package geo provides the spherical-earth and local-frame math used to
// place aircraft relative to an observer on the ground.
package geo

import "math"

const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0
	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi
	// EarthRadiusKm is the Earth's mean radius in kilometers
	EarthRadiusKm = 6371.0
	// MetersPerDegreeLat is the approximate north-south extent of one
	// degree of latitude, used by the flat-earth dead reckoning model
	MetersPerDegreeLat = 111320.0
)

// Location represents a position on or above the Earth's surface
type Location struct {
	Latitude  float64 `json:"latitude"`  // Degrees, positive North
	Longitude float64 `json:"longitude"` // Degrees, positive East
	Altitude  float64 `json:"altitude"`  // Meters above sea level
}

// LocalPosition is a position in the observer's local tangent frame,
// in meters. X points true north, Y up, Z east.
type LocalPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NormalizeAzimuth wraps an angle in degrees into [0, 360)
func NormalizeAzimuth(azimuth float64) float64 {
	azimuth = math.Mod(azimuth, 360.0)
	if azimuth < 0 {
		azimuth += 360.0
	}
	return azimuth
}

// DistanceKm calculates the great-circle distance between two locations in
// kilometers using the haversine formula. Altitude is ignored.
func DistanceKm(from, to Location) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	deltaLat := (to.Latitude - from.Latitude) * DegreesToRadians
	deltaLon := (to.Longitude - from.Longitude) * DegreesToRadians

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// BearingDeg calculates the initial bearing (forward azimuth) from one
// location to another, in degrees clockwise from true north, [0, 360)
func BearingDeg(from, to Location) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	deltaLon := (to.Longitude - from.Longitude) * DegreesToRadians

	y := math.Sin(deltaLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(deltaLon)

	return NormalizeAzimuth(math.Atan2(y, x) * RadiansToDegrees)
}

// ElevationDeg calculates the elevation angle from observer to target in
// degrees above the horizon, clamped to [0, 90]. distanceKm is the ground
// distance between the two points; a target directly overhead yields 90.
func ElevationDeg(observer, target Location, distanceKm float64) float64 {
	altitudeDiff := target.Altitude - observer.Altitude
	elevation := math.Atan2(altitudeDiff, distanceKm*1000.0) * RadiansToDegrees
	if elevation < 0 {
		return 0
	}
	return elevation
}

// ToLocal projects the target into the observer's local tangent frame by
// decomposing the ground distance along the initial bearing. The vertical
// axis carries the raw altitude difference.
func ToLocal(observer, target Location) LocalPosition {
	distanceM := DistanceKm(observer, target) * 1000.0
	bearingRad := BearingDeg(observer, target) * DegreesToRadians

	return LocalPosition{
		X: distanceM * math.Cos(bearingRad),
		Y: target.Altitude - observer.Altitude,
		Z: distanceM * math.Sin(bearingRad),
	}
}
