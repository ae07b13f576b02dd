// Package service orchestrates the upstream flight data clients behind
// the shared cache. Viewport queries, single-aircraft lookups and
// trajectory sampling all flow through here; concurrent cold-cache
// requests for the same key are coalesced into one upstream round trip.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skylens/skylens/internal/monitoring"
	"github.com/skylens/skylens/internal/session"
	"github.com/skylens/skylens/pkg/cache"
	"github.com/skylens/skylens/pkg/flights"
	"github.com/skylens/skylens/pkg/geo"
	"github.com/skylens/skylens/pkg/opensky"
)

const (
	flightsTTL    = 15 * time.Second
	flightTTL     = 30 * time.Second
	trajectoryTTL = 60 * time.Second

	// Continent-sized box used to find one aircraft by icao24 without
	// knowing where it is.
	europeLat      = 50.0
	europeLon      = 10.0
	europeRadiusKm = 1000.0
)

// Config holds flight service configuration.
type Config struct {
	BYOKEnabled  bool   // bring-your-own-key mode
	DemoDataPath string // optional fixtures served when the upstream is down
}

// Service aggregates upstream flight data. It owns no mutable state
// beyond the demo fixtures loaded at startup; upstream errors are
// returned to the caller for the response envelope instead of being
// parked in a shared slot.
type Service struct {
	cache  *cache.Cache
	client *opensky.Client
	anonTM *opensky.TokenManager
	store  *session.Store
	byok   bool
	demo   []opensky.StateVector

	group     singleflight.Group
	startedAt time.Time
}

// New creates the flight service. anonTM is the process-wide token
// manager used for anonymous traffic; store may be nil when
// bring-your-own-key mode is off.
func New(c *cache.Cache, client *opensky.Client, anonTM *opensky.TokenManager, store *session.Store, cfg Config) *Service {
	s := &Service{
		cache:     c,
		client:    client,
		anonTM:    anonTM,
		store:     store,
		byok:      cfg.BYOKEnabled,
		startedAt: time.Now(),
	}

	if cfg.DemoDataPath != "" {
		demo, err := loadDemoStates(cfg.DemoDataPath)
		if err != nil {
			log.Printf("⚠️ Could not load demo data from %s: %v", cfg.DemoDataPath, err)
		} else {
			s.demo = demo
			log.Printf("🎭 Loaded %d demo flights from %s", len(demo), cfg.DemoDataPath)
		}
	}
	return s
}

// TokenManager resolves the effective token manager for a request: the
// session's own manager when bring-your-own-key mode is on and the
// token resolves, the anonymous one otherwise. With the mode off,
// presented tokens are ignored entirely.
func (s *Service) TokenManager(sessionToken string) *opensky.TokenManager {
	if s.byok && sessionToken != "" && s.store != nil {
		if sess := s.store.Resolve(sessionToken); sess != nil {
			return sess.TokenManager
		}
	}
	return s.anonTM
}

// BYOKEnabled reports whether bring-your-own-key mode is on.
func (s *Service) BYOKEnabled() bool { return s.byok }

// Uptime since the service was constructed.
func (s *Service) Uptime() time.Duration { return time.Since(s.startedAt) }

// DemoFlightCount returns how many demo fixtures are loaded.
func (s *Service) DemoFlightCount() int { return len(s.demo) }

// FlightsInArea returns the processed flights within radiusKm of a
// point. Results are cached for 15 seconds per quantised viewport. On
// upstream failure it degrades to the demo fixtures, or an empty list,
// and returns the structured error alongside for the response envelope.
func (s *Service) FlightsInArea(ctx context.Context, lat, lon, radiusKm float64, sessionToken string) ([]flights.Flight, *opensky.APIError) {
	key := flightsKey(lat, lon, radiusKm)
	if cached, ok := getCached[[]flights.Flight](s.cache, key); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// a coalesced caller may land here just after the winner's Set
		if cached, ok := getCached[[]flights.Flight](s.cache, key); ok {
			return cached, nil
		}

		bbox := opensky.BoundingBoxAround(lat, lon, radiusKm)
		states, err := s.client.FetchStates(ctx, bbox, s.TokenManager(sessionToken))
		monitoring.RecordUpstream("opensky_states", err)
		if err != nil {
			return nil, err
		}

		user := geo.Location{Latitude: lat, Longitude: lon}
		processed := flights.Process(states, user, radiusKm, time.Now())
		_ = s.cache.Set(key, processed, flightsTTL)
		return processed, nil
	})
	if err != nil {
		log.Printf("⚠️ Flight fetch failed for %s: %v", key, err)
		return s.demoFallback(lat, lon, radiusKm), toAPIError(err)
	}
	return v.([]flights.Flight), nil
}

// FlightByICAO finds one aircraft by its icao24 address, scanning a
// Europe-wide snapshot processed against the default anchor. Found
// flights are cached for 30 seconds; a missing aircraft is nil, nil.
func (s *Service) FlightByICAO(ctx context.Context, icao, sessionToken string) (*flights.Flight, *opensky.APIError) {
	icao = strings.ToLower(icao)
	key := "flight_" + icao
	if cached, ok := getCached[*flights.Flight](s.cache, key); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := getCached[*flights.Flight](s.cache, key); ok {
			return cached, nil
		}

		bbox := opensky.BoundingBoxAround(europeLat, europeLon, europeRadiusKm)
		states, err := s.client.FetchStates(ctx, bbox, s.TokenManager(sessionToken))
		monitoring.RecordUpstream("opensky_states", err)
		if err != nil {
			return nil, err
		}

		anchor := geo.Location{Latitude: europeLat, Longitude: europeLon}
		for _, f := range flights.Process(states, anchor, europeRadiusKm, time.Now()) {
			if f.ICAO24 == icao {
				flight := f
				_ = s.cache.Set(key, &flight, flightTTL)
				return &flight, nil
			}
		}
		return (*flights.Flight)(nil), nil
	})
	if err != nil {
		log.Printf("⚠️ Flight lookup failed for %s: %v", icao, err)
		return nil, toAPIError(err)
	}
	return v.(*flights.Flight), nil
}

// Trajectory returns up to six sampled track points for one aircraft.
// The cache key rolls over each minute, which bounds staleness without
// a per-aircraft timer.
func (s *Service) Trajectory(ctx context.Context, icao, sessionToken string) ([]flights.TrajectoryPoint, *opensky.APIError) {
	icao = strings.ToLower(icao)
	now := time.Now()
	key := fmt.Sprintf("trajectory_%s_%d", icao, now.Unix()/60)
	if cached, ok := getCached[[]flights.TrajectoryPoint](s.cache, key); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := getCached[[]flights.TrajectoryPoint](s.cache, key); ok {
			return cached, nil
		}

		track, err := s.client.FetchTrack(ctx, icao, s.TokenManager(sessionToken))
		monitoring.RecordUpstream("opensky_tracks", err)
		if err != nil {
			return nil, err
		}

		var path []opensky.TrackPoint
		if track != nil {
			path = track.Path
		}
		samples := flights.SampleTrajectory(path, now)
		_ = s.cache.Set(key, samples, trajectoryTTL)
		return samples, nil
	})
	if err != nil {
		log.Printf("⚠️ Trajectory fetch failed for %s: %v", icao, err)
		return nil, toAPIError(err)
	}
	return v.([]flights.TrajectoryPoint), nil
}

// demoFallback processes the demo fixtures for the requested viewport,
// or returns an empty list when none are loaded.
func (s *Service) demoFallback(lat, lon, radiusKm float64) []flights.Flight {
	if len(s.demo) == 0 {
		return []flights.Flight{}
	}
	user := geo.Location{Latitude: lat, Longitude: lon}
	processed := flights.Process(s.demo, user, radiusKm, time.Now())
	log.Printf("🎭 Serving %d demo flights while the upstream is down", len(processed))
	return processed
}

// flightsKey quantises the viewport to four decimals (~11 m) so nearby
// requests share a cache entry.
func flightsKey(lat, lon, radiusKm float64) string {
	return fmt.Sprintf("flights_%.4f_%.4f_%s", lat, lon, strconv.FormatFloat(radiusKm, 'f', -1, 64))
}

// getCached decodes a cache entry, treating decode failures as misses.
func getCached[T any](c *cache.Cache, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

// toAPIError shapes any upstream failure for the response envelope.
func toAPIError(err error) *opensky.APIError {
	if apiErr, ok := opensky.AsAPIError(err); ok {
		return apiErr
	}
	return &opensky.APIError{Type: opensky.ErrTypeNetwork, Message: err.Error()}
}
