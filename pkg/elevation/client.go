// Package elevation provides a client for Open-Elevation compatible
// terrain lookup services.
// Reference: https://open-elevation.com/#api-docs
package elevation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skylens/skylens/pkg/cache"
)

const (
	// BaseURL is the public Open-Elevation instance
	BaseURL = "https://api.open-elevation.com"

	// DefaultTimeout for lookup requests; the public instance is slow
	// but anything beyond this stalls the overlay
	DefaultTimeout = 5 * time.Second

	// elevationTTL caches terrain heights, which do not move
	elevationTTL = time.Hour

	// DefaultRetryDelay is the pause between lookup attempts
	DefaultRetryDelay = time.Second

	maxAttempts = 3
)

// Config contains configuration for the elevation client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryDelay time.Duration
}

// Client represents an Open-Elevation API client backed by the shared
// cache.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryDelay time.Duration
	cache      *cache.Cache
}

// NewClient creates a new elevation client.
func NewClient(cfg Config, c *cache.Cache) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryDelay: cfg.RetryDelay,
		cache:      c,
	}
}

// ElevationAt returns the terrain elevation in meters at a coordinate.
// Lookups are cached for an hour; failed lookups are retried twice,
// a second apart, before giving up.
func (c *Client) ElevationAt(ctx context.Context, latitude, longitude float64) (float64, error) {
	key := fmt.Sprintf("elevation_%.6f_%.6f", latitude, longitude)
	if raw, ok := c.cache.Get(key); ok {
		var cached float64
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		elev, err := c.lookup(ctx, latitude, longitude)
		if err == nil {
			_ = c.cache.Set(key, elev, elevationTTL)
			return elev, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// lookupLocation is one coordinate in a lookup request.
type lookupLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// lookup performs a single POST /api/v1/lookup round trip.
func (c *Client) lookup(ctx context.Context, latitude, longitude float64) (float64, error) {
	payload := struct {
		Locations []lookupLocation `json:"locations"`
	}{
		Locations: []lookupLocation{{Latitude: latitude, Longitude: longitude}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/lookup", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var response struct {
		Results []struct {
			Elevation float64 `json:"elevation"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}
	if len(response.Results) == 0 {
		return 0, fmt.Errorf("empty results for %.6f, %.6f", latitude, longitude)
	}
	return response.Results[0].Elevation, nil
}
