// Package aviationstack provides a client for the AviationStack flight
// metadata API, resolving live callsigns to route information: operating
// airline, flight numbers and the departure/arrival airports.
//
// Callsigns rarely match the API's flight identifiers exactly, so a
// lookup walks a ranked list of query shapes (raw ICAO code, airline
// prefix + number variants, IATA translations) and takes the first one
// that produces rows. Results are cached, misses included, because the
// overlay re-resolves the same callsigns on every frame.
package aviationstack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/skylens/skylens/pkg/cache"
)

const (
	// BaseURL is the AviationStack API v1 base URL
	BaseURL = "https://api.aviationstack.com/v1"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second

	// routeTTL caches lookups, positive and negative alike
	routeTTL = 300 * time.Second
)

// Airport is one endpoint of a route.
type Airport struct {
	Airport   string `json:"airport,omitempty"`
	IATA      string `json:"iata,omitempty"`
	Scheduled string `json:"scheduled,omitempty"`
}

// Route is the resolved metadata for one callsign. UpdatedAt is unix
// milliseconds at resolution time.
type Route struct {
	Callsign   string  `json:"callsign"`
	Airline    string  `json:"airline,omitempty"`
	FlightIATA string  `json:"flightIata,omitempty"`
	FlightICAO string  `json:"flightIcao,omitempty"`
	Departure  Airport `json:"departure"`
	Arrival    Airport `json:"arrival"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// Config contains configuration for the AviationStack client.
type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client represents an AviationStack API client.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	cache       *cache.Cache
}

// NewClient creates a new AviationStack client backed by the shared
// cache. A client without an API key resolves every callsign to nil
// without contacting the upstream.
func NewClient(cfg Config, c *cache.Cache) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 1
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cache:       c,
	}
}

// Lookup resolves route metadata for a callsign.
//
// Returns nil, nil when nothing matches; that outcome is cached for five
// minutes so the upstream is not hammered on every frame for callsigns
// it cannot resolve. Upstream failures are returned and not cached.
func (c *Client) Lookup(ctx context.Context, callsign string) (*Route, error) {
	normalized := NormalizeCallsign(callsign)
	if normalized == "" || c.apiKey == "" {
		return nil, nil
	}

	key := "route_" + normalized
	if raw, ok := c.cache.Get(key); ok {
		var cached *Route
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	route, err := c.fetch(ctx, normalized)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(key, route, routeTTL)
	return route, nil
}

// NormalizeCallsign uppercases and strips all whitespace.
func NormalizeCallsign(callsign string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, callsign)
}

func (c *Client) fetch(ctx context.Context, callsign string) (*Route, error) {
	for _, params := range queryShapes(callsign) {
		rows, err := c.request(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		row := pickRow(rows, callsign)
		return row.toRoute(callsign, time.Now()), nil
	}
	return nil, nil
}

func (c *Client) request(ctx context.Context, params url.Values) ([]apiFlight, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	query := url.Values{}
	query.Set("access_key", c.apiKey)
	query.Set("limit", "1")
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	requestURL := fmt.Sprintf("%s/flights?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Data  []apiFlight `json:"data"`
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error %s: %s", response.Error.Code, response.Error.Info)
	}
	return response.Data, nil
}

// apiFlight mirrors one row of the upstream /flights payload.
type apiFlight struct {
	Departure struct {
		Airport   string `json:"airport"`
		IATA      string `json:"iata"`
		Scheduled string `json:"scheduled"`
	} `json:"departure"`
	Arrival struct {
		Airport   string `json:"airport"`
		IATA      string `json:"iata"`
		Scheduled string `json:"scheduled"`
	} `json:"arrival"`
	Airline struct {
		Name string `json:"name"`
		IATA string `json:"iata"`
		ICAO string `json:"icao"`
	} `json:"airline"`
	Flight struct {
		Number string `json:"number"`
		IATA   string `json:"iata"`
		ICAO   string `json:"icao"`
	} `json:"flight"`
}

func (f apiFlight) toRoute(callsign string, now time.Time) *Route {
	return &Route{
		Callsign:   callsign,
		Airline:    f.Airline.Name,
		FlightIATA: f.Flight.IATA,
		FlightICAO: f.Flight.ICAO,
		Departure: Airport{
			Airport:   f.Departure.Airport,
			IATA:      f.Departure.IATA,
			Scheduled: f.Departure.Scheduled,
		},
		Arrival: Airport{
			Airport:   f.Arrival.Airport,
			IATA:      f.Arrival.IATA,
			Scheduled: f.Arrival.Scheduled,
		},
		UpdatedAt: now.UnixMilli(),
	}
}

// pickRow prefers the row whose flight ICAO code matches the callsign.
func pickRow(rows []apiFlight, callsign string) apiFlight {
	for _, r := range rows {
		if strings.EqualFold(r.Flight.ICAO, callsign) {
			return r
		}
	}
	return rows[0]
}

// queryShapes builds the ranked request parameter sets for one callsign,
// deduplicated while preserving rank order.
func queryShapes(callsign string) []url.Values {
	var shapes []url.Values

	// (a) the callsign as a literal ICAO flight code
	shapes = append(shapes, url.Values{"flight_icao": {callsign}})

	prefix, rest := splitCallsign(callsign)
	if prefix != "" && rest != "" {
		numbers := numberVariants(rest)

		// (b) airline ICAO prefix plus the number variants
		for _, n := range numbers {
			shapes = append(shapes, url.Values{"airline_icao": {prefix}, "flight_number": {n}})
		}

		// (c) the same through the ICAO→IATA airline mapping
		if iata, ok := icaoToIATA[prefix]; ok {
			for _, n := range numbers {
				shapes = append(shapes, url.Values{"airline_iata": {iata}, "flight_number": {n}})
			}
			// (d) composed IATA flight code from the barest number
			shapes = append(shapes, url.Values{"flight_iata": {iata + numbers[len(numbers)-1]}})
		}
	}

	return dedupeShapes(shapes)
}

// splitCallsign separates the leading airline letters from the rest.
// Prefixes shorter than two letters are not treated as airline codes.
func splitCallsign(callsign string) (prefix, rest string) {
	i := 0
	for i < len(callsign) && callsign[i] >= 'A' && callsign[i] <= 'Z' {
		i++
	}
	if i < 2 || i == len(callsign) {
		return "", ""
	}
	return callsign[:i], callsign[i:]
}

// numberVariants returns the flight-number candidates for the tail of a
// callsign, most literal first: raw, leading zeros trimmed, trailing
// suffix letter stripped, and both.
func numberVariants(rest string) []string {
	candidates := []string{rest}

	if trimmed := strings.TrimLeft(rest, "0"); trimmed != "" {
		candidates = append(candidates, trimmed)
	}
	if stripped := stripSuffixLetter(rest); stripped != "" {
		candidates = append(candidates, stripped)
		if trimmed := strings.TrimLeft(stripped, "0"); trimmed != "" {
			candidates = append(candidates, trimmed)
		}
	}

	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func stripSuffixLetter(s string) string {
	if len(s) > 1 && s[len(s)-1] >= 'A' && s[len(s)-1] <= 'Z' {
		return s[:len(s)-1]
	}
	return ""
}

func dedupeShapes(shapes []url.Values) []url.Values {
	seen := make(map[string]bool, len(shapes))
	out := shapes[:0]
	for _, s := range shapes {
		enc := s.Encode()
		if seen[enc] {
			continue
		}
		seen[enc] = true
		out = append(out, s)
	}
	return out
}
