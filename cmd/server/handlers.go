package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skylens/skylens/pkg/geo"
	"github.com/skylens/skylens/pkg/opensky"
)

// trajectorySample is one waypoint of the trajectory response: the GPS
// fix plus its projection into the caller's local tangent frame.
type trajectorySample struct {
	Timestamp int64             `json:"timestamp"`
	GPS       geo.Location      `json:"gps"`
	Position  geo.LocalPosition `json:"position"`
}

// handleHealth reports liveness and process uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startedAt).Seconds(),
		"timestamp": timestamp(),
	})
}

// handleFlights returns processed flights around a viewport. A degraded
// upstream still answers 200 with fallback data and the structured
// error attached, so clients keep rendering.
func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.requireLatLon(w, r)
	if !ok {
		return
	}
	radius, msg := requireFloat(r, "radius")
	if msg != "" {
		respondError(w, http.StatusBadRequest, "Invalid parameters", msg)
		return
	}

	list, apiErr := s.flights.FlightsInArea(r.Context(), lat, lon, radius, sessionToken(r))

	resp := map[string]interface{}{
		"success":   true,
		"data":      list,
		"count":     len(list),
		"timestamp": timestamp(),
	}
	if apiErr != nil {
		resp["error"] = apiErr
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleFlightByICAO looks one aircraft up in the European snapshot.
func (s *Server) handleFlightByICAO(w http.ResponseWriter, r *http.Request) {
	icao, ok := requireICAO(w, r)
	if !ok {
		return
	}

	flight, apiErr := s.flights.FlightByICAO(r.Context(), icao, sessionToken(r))
	if apiErr != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":   false,
			"error":     apiErr,
			"timestamp": timestamp(),
		})
		return
	}
	if flight == nil {
		respondError(w, http.StatusNotFound, "Flight not found", "")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"data":      flight,
		"timestamp": timestamp(),
	})
}

// handleTrajectory returns the recent resampled path of an aircraft.
// Samples are shared via the cache; the projection into the caller's
// tangent frame is computed per request from lat, lon and alt.
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	icao, ok := requireICAO(w, r)
	if !ok {
		return
	}
	lat, lon, ok := s.requireLatLon(w, r)
	if !ok {
		return
	}
	alt := 0.0
	if raw := r.URL.Query().Get("alt"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			respondError(w, http.StatusBadRequest, "Invalid parameters", `parameter "alt" is not a valid number`)
			return
		}
		alt = v
	}

	points, apiErr := s.flights.Trajectory(r.Context(), icao, sessionToken(r))
	if apiErr != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":   false,
			"error":     apiErr,
			"timestamp": timestamp(),
		})
		return
	}

	observer := geo.Location{Latitude: lat, Longitude: lon, Altitude: alt}
	data := make([]trajectorySample, len(points))
	for i, p := range points {
		target := geo.Location{Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude}
		data[i] = trajectorySample{
			Timestamp: p.Timestamp,
			GPS:       target,
			Position:  geo.ToLocal(observer, target),
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"data":      data,
		"count":     len(data),
		"timestamp": timestamp(),
	})
}

// handleFlightRoute resolves callsign route metadata.
func (s *Server) handleFlightRoute(w http.ResponseWriter, r *http.Request) {
	callsign := r.URL.Query().Get("callsign")
	if callsign == "" {
		respondError(w, http.StatusBadRequest, "Invalid parameters", `missing required parameter "callsign"`)
		return
	}

	route, err := s.routes.Lookup(r.Context(), callsign)
	if err != nil {
		log.Printf("⚠️ Route lookup for %s failed: %v", callsign, err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch route", err.Error())
		return
	}
	if route == nil {
		respondError(w, http.StatusNotFound, "Route not found", "")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"data":      route,
		"timestamp": timestamp(),
	})
}

// handleElevation returns the terrain elevation at a coordinate.
func (s *Server) handleElevation(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.requireLatLon(w, r)
	if !ok {
		return
	}

	elev, err := s.elevation.ElevationAt(r.Context(), lat, lon)
	if err != nil {
		log.Printf("⚠️ Elevation lookup for %.6f, %.6f failed: %v", lat, lon, err)
		respondError(w, http.StatusInternalServerError, "Failed to fetch elevation", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"latitude":  lat,
		"longitude": lon,
		"elevation": elev,
		"timestamp": timestamp(),
	})
}

// handleCacheStats reports cache counters and service health figures.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"cache":   s.cache.Stats(),
		"service": map[string]interface{}{
			"uptimeSeconds":  s.flights.Uptime().Seconds(),
			"byokEnabled":    s.flights.BYOKEnabled(),
			"demoFlights":    s.flights.DemoFlightCount(),
			"activeSessions": s.sessions.Count(),
			"wsClients":      s.hub.ClientCount(),
		},
		"timestamp": timestamp(),
	})
}

// handleCacheClear drops every cache entry.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear()
	log.Println("🧹 Cache cleared via API")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Cache cleared",
	})
}

// handleOpenSkyReconnect forces a token refresh on the caller's
// effective token manager.
func (s *Server) handleOpenSkyReconnect(w http.ResponseWriter, r *http.Request) {
	tm := s.flights.TokenManager(sessionToken(r))
	if !tm.HasCredentials() {
		respondError(w, http.StatusBadRequest, "No credentials configured", "")
		return
	}

	if _, err := tm.AuthorizationHeader(r.Context(), true); err != nil {
		log.Printf("⚠️ Forced OpenSky token refresh failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Token refresh failed", err.Error())
		return
	}

	log.Println("🔄 Forced OpenSky token refresh")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"status":    tm.Status(),
		"timestamp": timestamp(),
	})
}

// handleCreateCredentials validates client-supplied OpenSky credentials
// by attempting a token exchange, then issues a session token bound to
// a dedicated token manager.
func (s *Server) handleCreateCredentials(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.BYOK.Enabled {
		respondError(w, http.StatusForbidden, "BYOK mode is disabled", "")
		return
	}

	var req struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body", "clientId and clientSecret are required")
		return
	}

	probe := opensky.NewTokenManager(req.ClientID, req.ClientSecret, s.cfg.OpenSky.TokenURL)
	if _, err := probe.AuthorizationHeader(r.Context(), true); err != nil {
		log.Printf("⚠️ OpenSky credential validation failed: %v", err)
		respondError(w, http.StatusUnauthorized, "Invalid credentials", err.Error())
		return
	}

	sess, err := s.sessions.Create(req.ClientID, req.ClientSecret)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"sessionToken": sess.Token,
	})
}

// handleOpenSkyStatus reports BYOK mode and whether the caller's
// session token is still honored.
func (s *Server) handleOpenSkyStatus(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"byokEnabled":   s.cfg.BYOK.Enabled,
		"hasSession":    token != "",
		"sessionActive": token != "" && s.sessions.Has(token),
	})
}

// handleDeleteCredentials removes the caller's credential session.
func (s *Server) handleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		respondError(w, http.StatusBadRequest, "No session token provided", "")
		return
	}
	if !s.sessions.Delete(token) {
		respondError(w, http.StatusNotFound, "Session not found", "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session deleted",
	})
}

// Helper functions

// requireLatLon parses the lat and lon query parameters, answering the
// 400 itself when either is missing or malformed.
func (s *Server) requireLatLon(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	lat, msg := requireFloat(r, "lat")
	if msg == "" {
		lon, msg = requireFloat(r, "lon")
	}
	if msg != "" {
		respondError(w, http.StatusBadRequest, "Invalid parameters", msg)
		return 0, 0, false
	}
	return lat, lon, true
}

// requireFloat parses a required numeric query parameter. NaN and
// infinities are rejected along with anything non-numeric.
func requireFloat(r *http.Request, name string) (float64, string) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Sprintf("missing required parameter %q", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Sprintf("parameter %q is not a valid number", name)
	}
	return v, ""
}

// requireICAO validates the icao URL parameter, answering the 400
// itself when it is not exactly six characters.
func requireICAO(w http.ResponseWriter, r *http.Request) (string, bool) {
	icao := chi.URLParam(r, "icao")
	if len(icao) != 6 {
		respondError(w, http.StatusBadRequest, "Invalid ICAO24 identifier", "must be exactly 6 characters")
		return "", false
	}
	return icao, true
}

// timestamp returns the RFC 3339 UTC stamp carried by every envelope.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	payload := map[string]interface{}{"error": errMsg}
	if message != "" {
		payload["message"] = message
	}
	respondJSON(w, status, payload)
}
