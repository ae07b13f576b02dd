package geo

import "math"

// Motion is an aircraft's last known kinematic state, the inputs dead
// reckoning needs.
type Motion struct {
	Latitude  float64 // Degrees, positive North
	Longitude float64 // Degrees, positive East
	Velocity  float64 // Ground speed, meters per second
	Track     float64 // Degrees clockwise from true north
	OnGround  bool
}

// Extrapolate predicts a position dtSeconds ahead using a flat-earth
// approximation: the traveled distance is decomposed along the track and
// converted to degree deltas at ~111320 m per degree of latitude, with the
// longitude delta scaled by cos(latitude). Aircraft on the ground or
// without forward velocity are returned unchanged; dt of zero is the
// identity. Altitude is not modeled here.
func Extrapolate(m Motion, dtSeconds float64) (lat, lon float64) {
	lat, lon = m.Latitude, m.Longitude
	if m.OnGround || m.Velocity <= 0 {
		return lat, lon
	}

	distanceM := m.Velocity * dtSeconds
	trackRad := m.Track * DegreesToRadians
	deltaNorthM := distanceM * math.Cos(trackRad)
	deltaEastM := distanceM * math.Sin(trackRad)

	cosLat := math.Cos(lat * DegreesToRadians)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}

	lat += deltaNorthM / MetersPerDegreeLat
	lon += deltaEastM / (MetersPerDegreeLat * cosLat)
	return lat, lon
}
