package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skylens/skylens/internal/ratelimit"
	"github.com/skylens/skylens/internal/service"
	"github.com/skylens/skylens/internal/session"
	"github.com/skylens/skylens/internal/ws"
	"github.com/skylens/skylens/pkg/aviationstack"
	"github.com/skylens/skylens/pkg/cache"
	"github.com/skylens/skylens/pkg/config"
	"github.com/skylens/skylens/pkg/elevation"
	"github.com/skylens/skylens/pkg/opensky"
)

func TestHealthEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "GET", ts.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	if _, ok := body["uptime"].(float64); !ok {
		t.Errorf("Expected numeric uptime, got %v", body["uptime"])
	}
	stamp, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Errorf("Expected RFC 3339 timestamp, got %q: %v", stamp, err)
	}
}

func TestFlightsEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "GET", ts.URL+"/api/flights?lat=50.0755&lon=14.4378&radius=100", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("Expected success true, got %v", body["success"])
	}
	if body["count"] != float64(1) {
		t.Errorf("Expected count 1, got %v", body["count"])
	}
	if _, degraded := body["error"]; degraded {
		t.Errorf("Expected no error on a healthy upstream, got %v", body["error"])
	}

	data, _ := body["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("Expected 1 flight, got %d", len(data))
	}
	flight, _ := data[0].(map[string]interface{})
	if flight["icao24"] != "3c6444" {
		t.Errorf("Expected icao24 3c6444, got %v", flight["icao24"])
	}
	if flight["callsign"] != "DLH123" {
		t.Errorf("Expected trimmed callsign DLH123, got %v", flight["callsign"])
	}
	if resp.Header.Get("RateLimit-Limit") != "100" {
		t.Errorf("Expected RateLimit-Limit 100, got %q", resp.Header.Get("RateLimit-Limit"))
	}
}

func TestFlightsEndpointRejectsBadParams(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	cases := []struct {
		name  string
		query string
	}{
		{"missing lon and radius", "?lat=50"},
		{"missing radius", "?lat=50&lon=14"},
		{"non-numeric lat", "?lat=abc&lon=14&radius=100"},
		{"NaN radius", "?lat=50&lon=14&radius=NaN"},
		{"no parameters", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := request(t, "GET", ts.URL+"/api/flights"+tc.query, "", "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", resp.StatusCode)
			}
			if body["error"] != "Invalid parameters" {
				t.Errorf("Expected error Invalid parameters, got %v", body["error"])
			}
		})
	}
}

func TestFlightsEndpointDegradedUpstream(t *testing.T) {
	up := newFakeUpstreams(t)
	up.setStatesCode(http.StatusServiceUnavailable)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "GET", ts.URL+"/api/flights?lat=50.0755&lon=14.4378&radius=100", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 on degraded upstream, got %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("Expected success true even when degraded, got %v", body["success"])
	}
	if body["count"] != float64(0) {
		t.Errorf("Expected empty fallback data, got count %v", body["count"])
	}

	apiErr, _ := body["error"].(map[string]interface{})
	if apiErr == nil {
		t.Fatal("Expected structured error in degraded response")
	}
	if apiErr["type"] != "opensky" {
		t.Errorf("Expected error type opensky, got %v", apiErr["type"])
	}
	if apiErr["statusCode"] != float64(503) {
		t.Errorf("Expected statusCode 503, got %v", apiErr["statusCode"])
	}
}

func TestFlightByICAOEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "GET", ts.URL+"/api/flights/3c6444", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	flight, _ := body["data"].(map[string]interface{})
	if flight["icao24"] != "3c6444" {
		t.Errorf("Expected icao24 3c6444, got %v", flight["icao24"])
	}

	resp, body = request(t, "GET", ts.URL+"/api/flights/abcdef", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected status 404 for unknown aircraft, got %d", resp.StatusCode)
	}
	if body["error"] != "Flight not found" {
		t.Errorf("Expected error Flight not found, got %v", body["error"])
	}

	resp, body = request(t, "GET", ts.URL+"/api/flights/abc", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400 for short identifier, got %d", resp.StatusCode)
	}
	if body["error"] != "Invalid ICAO24 identifier" {
		t.Errorf("Expected error Invalid ICAO24 identifier, got %v", body["error"])
	}
}

func TestTrajectoryEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "GET", ts.URL+"/api/flights/3c6444/trajectory?lat=50.0755&lon=14.4378&alt=200", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("Expected success true, got %v", body["success"])
	}

	data, _ := body["data"].([]interface{})
	if len(data) == 0 || len(data) > 6 {
		t.Fatalf("Expected 1..6 samples, got %d", len(data))
	}
	sample, _ := data[0].(map[string]interface{})
	for _, key := range []string{"timestamp", "gps", "position"} {
		if _, ok := sample[key]; !ok {
			t.Errorf("Sample missing %q: %v", key, sample)
		}
	}
	gps, _ := sample["gps"].(map[string]interface{})
	for _, field := range []string{"latitude", "longitude", "altitude"} {
		if _, ok := gps[field].(float64); !ok {
			t.Errorf("GPS missing field %q: %v", field, gps)
		}
	}
	position, _ := sample["position"].(map[string]interface{})
	for _, axis := range []string{"x", "y", "z"} {
		if _, ok := position[axis].(float64); !ok {
			t.Errorf("Position missing axis %q: %v", axis, position)
		}
	}

	resp, _ = request(t, "GET", ts.URL+"/api/flights/3c6444/trajectory?lat=50.0755", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 without lon, got %d", resp.StatusCode)
	}

	resp, _ = request(t, "GET", ts.URL+"/api/flights/3c6444/trajectory?lat=50&lon=14&alt=bogus", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-numeric alt, got %d", resp.StatusCode)
	}
}

func TestRouteEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	// "route" is shorter than an ICAO24 identifier, so a 200 here also
	// proves the static route is matched before /flights/{icao}.
	resp, body := request(t, "GET", ts.URL+"/api/flights/route?callsign=DLH123", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	route, _ := body["data"].(map[string]interface{})
	if route["callsign"] != "DLH123" {
		t.Errorf("Expected callsign DLH123, got %v", route["callsign"])
	}
	if route["flightIcao"] != "DLH123" {
		t.Errorf("Expected flightIcao DLH123, got %v", route["flightIcao"])
	}

	resp, body = request(t, "GET", ts.URL+"/api/flights/route?callsign=XXX999", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected status 404 for unknown callsign, got %d", resp.StatusCode)
	}
	if body["error"] != "Route not found" {
		t.Errorf("Expected error Route not found, got %v", body["error"])
	}

	resp, _ = request(t, "GET", ts.URL+"/api/flights/route", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 without callsign, got %d", resp.StatusCode)
	}
}

func TestElevationEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "GET", ts.URL+"/api/elevation?lat=50.0755&lon=14.4378", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if body["elevation"] != float64(235) {
		t.Errorf("Expected elevation 235, got %v", body["elevation"])
	}
	if body["latitude"] != 50.0755 || body["longitude"] != 14.4378 {
		t.Errorf("Expected echoed coordinates, got %v, %v", body["latitude"], body["longitude"])
	}

	resp, _ = request(t, "GET", ts.URL+"/api/elevation?lat=50.0755", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 without lon, got %d", resp.StatusCode)
	}
}

func TestCacheEndpoints(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	// populate the cache
	request(t, "GET", ts.URL+"/api/flights?lat=50.0755&lon=14.4378&radius=100", "", "")

	resp, body := request(t, "GET", ts.URL+"/api/cache/stats", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	stats, _ := body["cache"].(map[string]interface{})
	if keys, _ := stats["keys"].(float64); keys < 1 {
		t.Errorf("Expected at least 1 cached key, got %v", stats["keys"])
	}
	svc, _ := body["service"].(map[string]interface{})
	if svc["byokEnabled"] != false {
		t.Errorf("Expected byokEnabled false, got %v", svc["byokEnabled"])
	}
	if _, ok := svc["uptimeSeconds"].(float64); !ok {
		t.Errorf("Expected numeric uptimeSeconds, got %v", svc["uptimeSeconds"])
	}

	resp, body = request(t, "DELETE", ts.URL+"/api/cache", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if body["message"] != "Cache cleared" {
		t.Errorf("Expected message Cache cleared, got %v", body["message"])
	}

	_, body = request(t, "GET", ts.URL+"/api/cache/stats", "", "")
	stats, _ = body["cache"].(map[string]interface{})
	if stats["keys"] != float64(0) {
		t.Errorf("Expected empty cache after clear, got %v keys", stats["keys"])
	}
}

func TestRateLimitHeaders(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, _ := request(t, "GET", ts.URL+"/api/cache/stats", "", "")
	if resp.Header.Get("RateLimit-Limit") != "100" {
		t.Errorf("Expected RateLimit-Limit 100, got %q", resp.Header.Get("RateLimit-Limit"))
	}
	if resp.Header.Get("RateLimit-Remaining") != "99" {
		t.Errorf("Expected RateLimit-Remaining 99, got %q", resp.Header.Get("RateLimit-Remaining"))
	}
	reset, err := strconv.Atoi(resp.Header.Get("RateLimit-Reset"))
	if err != nil || reset < 1 || reset > 900 {
		t.Errorf("Expected RateLimit-Reset within the window, got %q", resp.Header.Get("RateLimit-Reset"))
	}

	resp, _ = request(t, "GET", ts.URL+"/api/cache/stats", "", "")
	if resp.Header.Get("RateLimit-Remaining") != "98" {
		t.Errorf("Expected RateLimit-Remaining 98, got %q", resp.Header.Get("RateLimit-Remaining"))
	}
}

func TestAnonymousBYOKRateLimit(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{byok: true})

	for i := 0; i < 10; i++ {
		resp, _ := request(t, "GET", ts.URL+"/api/cache/stats", "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i+1, resp.StatusCode)
		}
		if resp.Header.Get("RateLimit-Limit") != "10" {
			t.Fatalf("Expected RateLimit-Limit 10, got %q", resp.Header.Get("RateLimit-Limit"))
		}
	}

	resp, body := request(t, "GET", ts.URL+"/api/cache/stats", "", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429 after the window is spent, got %d", resp.StatusCode)
	}
	if resp.Header.Get("RateLimit-Remaining") != "0" {
		t.Errorf("Expected RateLimit-Remaining 0, got %q", resp.Header.Get("RateLimit-Remaining"))
	}
	if body["error"] != "Rate limit exceeded" {
		t.Errorf("Expected error Rate limit exceeded, got %v", body["error"])
	}
}

func TestSessionRateLimitTier(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{byok: true})

	token := createSession(t, ts)

	// burn the rest of the shared anonymous allowance
	for i := 0; i < 9; i++ {
		resp, _ := request(t, "GET", ts.URL+"/api/cache/stats", "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i+1, resp.StatusCode)
		}
	}
	resp, _ := request(t, "GET", ts.URL+"/api/cache/stats", "", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected anonymous 429, got %d", resp.StatusCode)
	}

	// the session rides its own generous bucket
	resp, _ = request(t, "GET", ts.URL+"/api/cache/stats", "", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected session request to pass, got %d", resp.StatusCode)
	}
	if resp.Header.Get("RateLimit-Limit") != "100" {
		t.Errorf("Expected session RateLimit-Limit 100, got %q", resp.Header.Get("RateLimit-Limit"))
	}
}

func TestOpenSkyStatusEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{byok: true})

	_, body := request(t, "GET", ts.URL+"/api/opensky/status", "", "")
	if body["byokEnabled"] != true {
		t.Errorf("Expected byokEnabled true, got %v", body["byokEnabled"])
	}
	if body["hasSession"] != false || body["sessionActive"] != false {
		t.Errorf("Expected no session without a token, got %v", body)
	}

	_, body = request(t, "GET", ts.URL+"/api/opensky/status", "", "deadbeefdeadbeefdeadbeefdeadbeef")
	if body["hasSession"] != true {
		t.Errorf("Expected hasSession true with a token, got %v", body["hasSession"])
	}
	if body["sessionActive"] != false {
		t.Errorf("Expected sessionActive false for a bogus token, got %v", body["sessionActive"])
	}

	token := createSession(t, ts)
	_, body = request(t, "GET", ts.URL+"/api/opensky/status", "", token)
	if body["hasSession"] != true || body["sessionActive"] != true {
		t.Errorf("Expected live session to be reported, got %v", body)
	}
}

func TestCreateCredentials(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{byok: true})

	resp, body := request(t, "POST", ts.URL+"/api/opensky/credentials",
		`{"clientId":"valid-id","clientSecret":"valid-secret"}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %v", resp.StatusCode, body)
	}
	token, _ := body["sessionToken"].(string)
	if len(token) != 32 {
		t.Errorf("Expected 128-bit hex session token, got %q", token)
	}

	resp, body = request(t, "POST", ts.URL+"/api/opensky/credentials",
		`{"clientId":"bad-id","clientSecret":"nope"}`, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 for rejected credentials, got %d", resp.StatusCode)
	}
	if body["error"] != "Invalid credentials" {
		t.Errorf("Expected error Invalid credentials, got %v", body["error"])
	}

	resp, _ = request(t, "POST", ts.URL+"/api/opensky/credentials", `{"clientId":"only-id"}`, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing secret, got %d", resp.StatusCode)
	}

	resp, _ = request(t, "POST", ts.URL+"/api/opensky/credentials", `{not json`, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestCreateCredentialsRequiresBYOK(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "POST", ts.URL+"/api/opensky/credentials",
		`{"clientId":"valid-id","clientSecret":"valid-secret"}`, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Expected status 403 with BYOK disabled, got %d", resp.StatusCode)
	}
	if body["error"] != "BYOK mode is disabled" {
		t.Errorf("Expected error BYOK mode is disabled, got %v", body["error"])
	}
}

func TestDeleteCredentials(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{byok: true})

	resp, _ := request(t, "DELETE", ts.URL+"/api/opensky/credentials", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 without a token, got %d", resp.StatusCode)
	}

	resp, _ = request(t, "DELETE", ts.URL+"/api/opensky/credentials", "", "deadbeefdeadbeefdeadbeefdeadbeef")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown token, got %d", resp.StatusCode)
	}

	token := createSession(t, ts)
	resp, body := request(t, "DELETE", ts.URL+"/api/opensky/credentials", "", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if body["message"] != "Session deleted" {
		t.Errorf("Expected message Session deleted, got %v", body["message"])
	}

	_, body = request(t, "GET", ts.URL+"/api/opensky/status", "", token)
	if body["sessionActive"] != false {
		t.Errorf("Expected deleted session to be inactive, got %v", body["sessionActive"])
	}
}

func TestReconnectEndpoint(t *testing.T) {
	up := newFakeUpstreams(t)
	_, ts := newTestServer(t, up, serverOptions{})

	resp, body := request(t, "POST", ts.URL+"/api/opensky/reconnect", "", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected status 400 without credentials, got %d", resp.StatusCode)
	}
	if body["error"] != "No credentials configured" {
		t.Errorf("Expected error No credentials configured, got %v", body["error"])
	}

	_, ts = newTestServer(t, up, serverOptions{anonCreds: true})
	resp, body = request(t, "POST", ts.URL+"/api/opensky/reconnect", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %v", resp.StatusCode, body)
	}
	status, _ := body["status"].(map[string]interface{})
	if status["credentialsConfigured"] != true {
		t.Errorf("Expected credentialsConfigured true, got %v", status["credentialsConfigured"])
	}
	if _, ok := status["tokenExpiresAt"].(float64); !ok {
		t.Errorf("Expected tokenExpiresAt after a forced refresh, got %v", status["tokenExpiresAt"])
	}
}

// Test helpers

// fakeUpstreams serves every external API the server talks to from one
// test server: OpenSky states, tracks and token endpoints, the
// AviationStack flights API and an Open-Elevation lookup.
type fakeUpstreams struct {
	server *httptest.Server

	mu         sync.Mutex
	statesCode int
}

func newFakeUpstreams(t *testing.T) *fakeUpstreams {
	t.Helper()
	f := &fakeUpstreams{}

	mux := http.NewServeMux()
	mux.HandleFunc("/states/all", f.handleStates)
	mux.HandleFunc("/tracks/all", f.handleTracks)
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/v1/flights", f.handleRoutes)
	mux.HandleFunc("/api/v1/lookup", f.handleElevation)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// setStatesCode forces the states endpoint to answer with an error
// status; zero restores normal rows.
func (f *fakeUpstreams) setStatesCode(code int) {
	f.mu.Lock()
	f.statesCode = code
	f.mu.Unlock()
}

func (f *fakeUpstreams) handleStates(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	code := f.statesCode
	f.mu.Unlock()
	if code != 0 {
		http.Error(w, "upstream unavailable", code)
		return
	}

	now := float64(time.Now().Unix())
	json.NewEncoder(w).Encode(map[string]interface{}{
		"time": time.Now().Unix(),
		"states": [][]interface{}{
			{"3c6444", "DLH123  ", "Germany", now, now, 14.4, 50.05, nil,
				false, 250.0, 90.0, 0.0, nil, 10000.0, "1000", false, 0},
		},
	})
}

func (f *fakeUpstreams) handleTracks(w http.ResponseWriter, r *http.Request) {
	now := time.Now().Unix()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"icao24":    r.URL.Query().Get("icao24"),
		"startTime": now - 600,
		"endTime":   now,
		"callsign":  "DLH123",
		"path": [][]interface{}{
			{now - 600, 50.0, 14.0, 9000.0, 90.0, false},
			{now - 300, 50.05, 14.2, 9500.0, 90.0, false},
			{now, 50.1, 14.4, 10000.0, 90.0, false},
		},
	})
}

// handleToken rejects the client_id "bad-id" and grants everyone else.
func (f *fakeUpstreams) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostFormValue("grant_type") != "client_credentials" {
		http.Error(w, "unsupported grant", http.StatusBadRequest)
		return
	}
	if r.PostFormValue("client_id") == "bad-id" {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "token-" + r.PostFormValue("client_id"),
		"expires_in":   1800,
	})
}

func (f *fakeUpstreams) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("flight_icao") != "DLH123" {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": []map[string]interface{}{{
			"departure": map[string]interface{}{"airport": "Frankfurt am Main", "iata": "FRA"},
			"arrival":   map[string]interface{}{"airport": "Václav Havel Airport Prague", "iata": "PRG"},
			"airline":   map[string]interface{}{"name": "Lufthansa", "iata": "LH", "icao": "DLH"},
			"flight":    map[string]interface{}{"number": "123", "iata": "LH123", "icao": "DLH123"},
		}},
	})
}

func (f *fakeUpstreams) handleElevation(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": []map[string]interface{}{{"elevation": 235.0}},
	})
}

type serverOptions struct {
	byok      bool
	anonCreds bool
}

// newTestServer wires a Server against the fake upstreams and exposes
// its router on a test listener.
func newTestServer(t *testing.T, up *fakeUpstreams, opts serverOptions) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BYOK.Enabled = opts.byok
	cfg.OpenSky.TokenURL = up.server.URL + "/token"

	store, err := cache.New()
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := opensky.NewClient(up.server.URL+"/states/all", up.server.URL+"/tracks/all")
	client.SetRetry(opensky.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond})

	clientID, clientSecret := "", ""
	if opts.anonCreds {
		clientID, clientSecret = "anon-id", "anon-secret"
	}
	anonTM := opensky.NewTokenManager(clientID, clientSecret, cfg.OpenSky.TokenURL)

	sessions := session.NewStore(session.Config{TokenURL: cfg.OpenSky.TokenURL})
	t.Cleanup(sessions.Close)

	flightSvc := service.New(store, client, anonTM, sessions, service.Config{
		BYOKEnabled: opts.byok,
	})

	hub := ws.NewHub(flightSvc, ws.Config{BroadcastInterval: time.Hour})
	t.Cleanup(hub.Close)

	srv := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		cache:    store,
		flights:  flightSvc,
		sessions: sessions,
		anonTM:   anonTM,
		routes: aviationstack.NewClient(aviationstack.Config{
			APIKey:            "test-key",
			BaseURL:           up.server.URL + "/v1",
			RequestsPerSecond: 1000,
		}, store),
		elevation: elevation.NewClient(elevation.Config{
			BaseURL:    up.server.URL,
			RetryDelay: time.Millisecond,
		}, store),
		hub:       hub,
		limiter:   ratelimit.New(),
		startedAt: time.Now(),
	}
	srv.setupRoutes()

	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return srv, ts
}

// request performs one HTTP round trip and decodes the JSON body. An
// empty body string sends no body; token, when set, rides the
// X-Session-Token header.
func request(t *testing.T, method, url, body, token string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Session-Token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	decoded := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("parse response %q: %v", raw, err)
		}
	}
	return resp, decoded
}

// createSession registers valid credentials and returns the session token.
func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp, body := request(t, "POST", ts.URL+"/api/opensky/credentials",
		`{"clientId":"valid-id","clientSecret":"valid-secret"}`, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session failed with status %d: %v", resp.StatusCode, body)
	}
	token, _ := body["sessionToken"].(string)
	if token == "" {
		t.Fatal("create session returned no token")
	}
	return token
}
