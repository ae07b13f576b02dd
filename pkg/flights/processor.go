package flights

import (
	"strings"
	"time"

	"github.com/skylens/skylens/pkg/geo"
	"github.com/skylens/skylens/pkg/opensky"
)

// Process converts raw state vectors into flights placed around an
// observer. Rows without coordinates or without any altitude are dropped,
// as is everything farther than radiusKm (a flight exactly at the radius
// is kept). Pure: same inputs, same output.
func Process(states []opensky.StateVector, user geo.Location, radiusKm float64, now time.Time) []Flight {
	result := make([]Flight, 0, len(states))
	for _, sv := range states {
		if f, ok := processOne(sv, user, radiusKm, now); ok {
			result = append(result, f)
		}
	}
	return result
}

func processOne(sv opensky.StateVector, user geo.Location, radiusKm float64, now time.Time) (Flight, bool) {
	if sv.Latitude == nil || sv.Longitude == nil {
		return Flight{}, false
	}

	var altitude float64
	switch {
	case sv.BaroAltitude != nil:
		altitude = *sv.BaroAltitude
	case sv.GeoAltitude != nil:
		altitude = *sv.GeoAltitude
	default:
		return Flight{}, false
	}

	target := geo.Location{Latitude: *sv.Latitude, Longitude: *sv.Longitude, Altitude: altitude}
	distance := geo.DistanceKm(user, target)
	if distance > radiusKm {
		return Flight{}, false
	}

	trimmed := strings.TrimSpace(sv.Callsign)
	airline := AirlineForCallsign(trimmed)
	callsign := trimmed
	if callsign == "" {
		callsign = "UNKNOWN"
	}

	lastUpdate := now.UnixMilli()
	if sv.TimePosition != nil {
		lastUpdate = *sv.TimePosition * 1000
	}

	return Flight{
		ID:            sv.ICAO24,
		ICAO24:        sv.ICAO24,
		Callsign:      callsign,
		Airline:       airline,
		OriginCountry: sv.OriginCountry,
		GPS:           target,
		Velocity:      floatOrZero(sv.Velocity),
		Heading:       floatOrZero(sv.TrueTrack),
		VerticalRate:  floatOrZero(sv.VerticalRate),
		OnGround:      sv.OnGround,
		Distance:      distance,
		Azimuth:       geo.BearingDeg(user, target),
		Elevation:     geo.ElevationDeg(user, target, distance),
		Position:      geo.ToLocal(user, target),
		LastUpdate:    lastUpdate,
	}, true
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
