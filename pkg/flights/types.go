// Package flights turns raw upstream state vectors into the client-facing
// flight model: observer-relative placement, airline attribution and
// trajectory resampling.
package flights

import "github.com/skylens/skylens/pkg/geo"

// Flight is one processed aircraft as served to clients. Distances are
// kilometers, angles degrees, altitude and position meters, LastUpdate
// unix milliseconds.
type Flight struct {
	ID            string            `json:"id"`
	ICAO24        string            `json:"icao24"`
	Callsign      string            `json:"callsign"`
	Airline       string            `json:"airline"`
	OriginCountry string            `json:"originCountry"`
	GPS           geo.Location      `json:"gps"`
	Velocity      float64           `json:"velocity"`
	Heading       float64           `json:"heading"`
	VerticalRate  float64           `json:"verticalRate"`
	OnGround      bool              `json:"onGround"`
	Distance      float64           `json:"distance"`
	Azimuth       float64           `json:"azimuth"`
	Elevation     float64           `json:"elevation"`
	Position      geo.LocalPosition `json:"position"`
	LastUpdate    int64             `json:"lastUpdate"`
}

// TrajectoryPoint is one resampled waypoint of a flight's recent path.
// Timestamp is unix milliseconds.
type TrajectoryPoint struct {
	Timestamp int64   `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}
