// Package opensky talks to an OpenSky-compatible flight data API: live
// state vector snapshots, per-aircraft historical tracks and the OAuth2
// client-credentials token endpoint securing them.
package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/skylens/skylens/pkg/geo"
)

const (
	// DefaultStatesURL serves the live state vector snapshot
	DefaultStatesURL = "https://opensky-network.org/api/states/all"

	// DefaultTracksURL serves per-aircraft historical tracks
	DefaultTracksURL = "https://opensky-network.org/api/tracks/all"
)

// StateVector is one aircraft row from the states endpoint. Nullable
// upstream fields stay pointers so absent and zero remain distinct.
type StateVector struct {
	ICAO24         string
	Callsign       string
	OriginCountry  string
	TimePosition   *int64
	LastContact    *int64
	Longitude      *float64
	Latitude       *float64
	GeoAltitude    *float64
	OnGround       bool
	Velocity       *float64
	TrueTrack      *float64
	VerticalRate   *float64
	BaroAltitude   *float64
	Squawk         string
	PositionSource int
}

// Positional layout of a states row.
const (
	idxICAO24         = 0
	idxCallsign       = 1
	idxOriginCountry  = 2
	idxTimePosition   = 3
	idxLastContact    = 4
	idxLongitude      = 5
	idxLatitude       = 6
	idxGeoAltitude    = 7
	idxOnGround       = 8
	idxVelocity       = 9
	idxTrueTrack      = 10
	idxVerticalRate   = 11
	idxBaroAltitude   = 13
	idxSquawk         = 14
	idxPositionSource = 16
)

// BoundingBox delimits a states query area in degrees.
type BoundingBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// BoundingBoxAround computes the query box covering a radius around a
// center point: one degree of latitude spans ~111 km and the longitude
// span widens with 1/cos(latitude), floored near the poles.
func BoundingBoxAround(lat, lon, radiusKm float64) BoundingBox {
	latDelta := radiusKm / 111.0
	cosLat := math.Abs(math.Cos(lat * geo.DegreesToRadians))
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	lonDelta := radiusKm / (111.0 * cosLat)
	return BoundingBox{
		LatMin: lat - latDelta,
		LatMax: lat + latDelta,
		LonMin: lon - lonDelta,
		LonMax: lon + lonDelta,
	}
}

// Track is the historical path for one aircraft.
type Track struct {
	ICAO24    string
	StartTime int64
	EndTime   int64
	Callsign  string
	Path      []TrackPoint
}

// TrackPoint is one waypoint of a track. Time is unix seconds; a null
// upstream altitude becomes 0.
type TrackPoint struct {
	Time      int64
	Latitude  float64
	Longitude float64
	Altitude  float64
	Heading   float64
	OnGround  bool
}

// Client queries the states and tracks endpoints. Transient failures are
// retried with linear backoff; an expired token is refreshed once per
// attempt on 401.
type Client struct {
	statesURL  string
	tracksURL  string
	httpClient *http.Client
	retry      RetryConfig
}

// NewClient builds a client for the given endpoints; empty strings select
// the OpenSky production URLs.
func NewClient(statesURL, tracksURL string) *Client {
	if statesURL == "" {
		statesURL = DefaultStatesURL
	}
	if tracksURL == "" {
		tracksURL = DefaultTracksURL
	}
	return &Client{
		statesURL:  statesURL,
		tracksURL:  tracksURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      DefaultRetryConfig(),
	}
}

// SetRetry overrides the retry policy. Useful against fast local
// endpoints where the default one-second backoff only adds latency.
func (c *Client) SetRetry(cfg RetryConfig) {
	c.retry = cfg
}

// FetchStates returns the current state vectors inside bbox. tm may be
// nil for anonymous access. Rows without an icao24 are skipped.
func (c *Client) FetchStates(ctx context.Context, bbox BoundingBox, tm *TokenManager) ([]StateVector, error) {
	query := url.Values{}
	query.Set("lamin", formatCoord(bbox.LatMin))
	query.Set("lomin", formatCoord(bbox.LonMin))
	query.Set("lamax", formatCoord(bbox.LatMax))
	query.Set("lomax", formatCoord(bbox.LonMax))
	requestURL := c.statesURL + "?" + query.Encode()

	body, err := RetryTransient(ctx, c.retry, func() ([]byte, error) {
		return c.doAuthorized(ctx, requestURL, tm)
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Time   int64           `json:"time"`
		States [][]interface{} `json:"states"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode states response: %w", err)
	}

	states := make([]StateVector, 0, len(payload.States))
	for _, row := range payload.States {
		if sv, ok := parseStateRow(row); ok {
			states = append(states, sv)
		}
	}
	return states, nil
}

// FetchTrack returns the full stored track for one aircraft.
func (c *Client) FetchTrack(ctx context.Context, icao24 string, tm *TokenManager) (*Track, error) {
	query := url.Values{}
	query.Set("icao24", icao24)
	query.Set("time", "0")
	requestURL := c.tracksURL + "?" + query.Encode()

	body, err := RetryTransient(ctx, c.retry, func() ([]byte, error) {
		return c.doAuthorized(ctx, requestURL, tm)
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		ICAO24    string          `json:"icao24"`
		StartTime float64         `json:"startTime"`
		EndTime   float64         `json:"endTime"`
		Callsign  string          `json:"callsign"`
		Path      [][]interface{} `json:"path"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode track response: %w", err)
	}

	track := &Track{
		ICAO24:    payload.ICAO24,
		StartTime: int64(payload.StartTime),
		EndTime:   int64(payload.EndTime),
		Callsign:  strings.TrimSpace(payload.Callsign),
	}
	for _, raw := range payload.Path {
		if wp, ok := parseTrackPoint(raw); ok {
			track.Path = append(track.Path, wp)
		}
	}
	return track, nil
}

// doAuthorized performs one authorized GET. A 401 invalidates the cached
// token and retries once within the same attempt using a forced refresh;
// a 401 on anonymous access escalates directly.
func (c *Client) doAuthorized(ctx context.Context, requestURL string, tm *TokenManager) ([]byte, error) {
	header := ""
	if tm != nil {
		h, err := tm.AuthorizationHeader(ctx, false)
		if err != nil {
			return nil, err
		}
		header = h
	}

	body, status, err := c.do(ctx, requestURL, header)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && tm != nil && tm.HasCredentials() {
		tm.Invalidate()
		h, err := tm.AuthorizationHeader(ctx, true)
		if err != nil {
			return nil, err
		}
		body, status, err = c.do(ctx, requestURL, h)
		if err != nil {
			return nil, err
		}
	}

	if status != http.StatusOK {
		return nil, &APIError{
			Type:       ClassifyStatus(status),
			StatusCode: status,
			Message:    fmt.Sprintf("upstream returned HTTP %d", status),
		}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, requestURL, authorization string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &APIError{Type: ErrTypeNetwork, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &APIError{Type: ErrTypeNetwork, Message: fmt.Sprintf("failed to read response: %v", err)}
	}
	return body, resp.StatusCode, nil
}

func parseStateRow(row []interface{}) (StateVector, bool) {
	var sv StateVector
	icao, ok := stringAt(row, idxICAO24)
	if !ok || icao == "" {
		return sv, false
	}
	sv.ICAO24 = icao
	sv.Callsign, _ = stringAt(row, idxCallsign)
	sv.OriginCountry, _ = stringAt(row, idxOriginCountry)
	sv.TimePosition = int64At(row, idxTimePosition)
	sv.LastContact = int64At(row, idxLastContact)
	sv.Longitude = floatAt(row, idxLongitude)
	sv.Latitude = floatAt(row, idxLatitude)
	sv.GeoAltitude = floatAt(row, idxGeoAltitude)
	if b, ok := boolAt(row, idxOnGround); ok {
		sv.OnGround = b
	}
	sv.Velocity = floatAt(row, idxVelocity)
	sv.TrueTrack = floatAt(row, idxTrueTrack)
	sv.VerticalRate = floatAt(row, idxVerticalRate)
	sv.BaroAltitude = floatAt(row, idxBaroAltitude)
	sv.Squawk, _ = stringAt(row, idxSquawk)
	if n := int64At(row, idxPositionSource); n != nil {
		sv.PositionSource = int(*n)
	}
	return sv, true
}

// parseTrackPoint reads one waypoint array [time, lat, lon, altitude,
// heading, onGround]. Rows without time or coordinates are dropped.
func parseTrackPoint(row []interface{}) (TrackPoint, bool) {
	var wp TrackPoint
	ts := int64At(row, 0)
	lat := floatAt(row, 1)
	lon := floatAt(row, 2)
	if ts == nil || lat == nil || lon == nil {
		return wp, false
	}
	wp.Time = *ts
	wp.Latitude = *lat
	wp.Longitude = *lon
	if alt := floatAt(row, 3); alt != nil {
		wp.Altitude = *alt
	}
	if hdg := floatAt(row, 4); hdg != nil {
		wp.Heading = *hdg
	}
	if b, ok := boolAt(row, 5); ok {
		wp.OnGround = b
	}
	return wp, true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stringAt(row []interface{}, idx int) (string, bool) {
	if idx >= len(row) {
		return "", false
	}
	s, ok := row[idx].(string)
	return s, ok
}

func floatAt(row []interface{}, idx int) *float64 {
	if idx >= len(row) {
		return nil
	}
	switch v := row[idx].(type) {
	case float64:
		return &v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

func int64At(row []interface{}, idx int) *int64 {
	if f := floatAt(row, idx); f != nil {
		n := int64(*f)
		return &n
	}
	return nil
}

func boolAt(row []interface{}, idx int) (bool, bool) {
	if idx >= len(row) {
		return false, false
	}
	b, ok := row[idx].(bool)
	return b, ok
}
