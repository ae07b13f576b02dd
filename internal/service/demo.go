package service

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/skylens/skylens/pkg/opensky"
)

// demoState is one entry of the demo fixtures file: a named-field
// rendition of a raw state row, because hand-editing positional arrays
// is miserable.
type demoState struct {
	ICAO24        string   `json:"icao24"`
	Callsign      string   `json:"callsign"`
	OriginCountry string   `json:"originCountry"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	BaroAltitude  *float64 `json:"baroAltitude"`
	GeoAltitude   *float64 `json:"geoAltitude"`
	Velocity      *float64 `json:"velocity"`
	TrueTrack     *float64 `json:"trueTrack"`
	VerticalRate  *float64 `json:"verticalRate"`
	OnGround      bool     `json:"onGround"`
}

// loadDemoStates reads the fixtures file into state vectors. Fixtures
// carry no position timestamp so they always process as fresh.
func loadDemoStates(path string) ([]opensky.StateVector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demo data: %w", err)
	}

	var rows []demoState
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse demo data: %w", err)
	}

	states := make([]opensky.StateVector, 0, len(rows))
	for _, row := range rows {
		if row.ICAO24 == "" {
			continue
		}
		states = append(states, opensky.StateVector{
			ICAO24:        row.ICAO24,
			Callsign:      row.Callsign,
			OriginCountry: row.OriginCountry,
			Latitude:      row.Latitude,
			Longitude:     row.Longitude,
			BaroAltitude:  row.BaroAltitude,
			GeoAltitude:   row.GeoAltitude,
			Velocity:      row.Velocity,
			TrueTrack:     row.TrueTrack,
			VerticalRate:  row.VerticalRate,
			OnGround:      row.OnGround,
		})
	}
	return states, nil
}
