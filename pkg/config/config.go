// Package config loads the application configuration from an optional
// JSON file with environment variable overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skylens/skylens/pkg/aviationstack"
	"github.com/skylens/skylens/pkg/elevation"
	"github.com/skylens/skylens/pkg/opensky"
)

// Config represents the complete application configuration.
type Config struct {
	Server        ServerConfig        `json:"server"`
	OpenSky       OpenSkyConfig       `json:"opensky"`
	AviationStack AviationStackConfig `json:"aviationstack"`
	Elevation     ElevationConfig     `json:"elevation"`
	BYOK          BYOKConfig          `json:"byok"`
	Broadcast     BroadcastConfig     `json:"broadcast"`
	Demo          DemoConfig          `json:"demo"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`
}

// OpenSkyConfig contains flight data provider settings.
type OpenSkyConfig struct {
	// ClientID for OAuth2 client-credentials authentication.
	// Anonymous access works without credentials at lower rate limits.
	ClientID string `json:"client_id"`

	// ClientSecret for OAuth2 client-credentials authentication
	// (should be loaded from environment)
	ClientSecret string `json:"client_secret"`

	// APIURL is the REST API base (default: "https://opensky-network.org/api")
	APIURL string `json:"api_url"`

	// TracksAPIURL is the base for the tracks endpoint. Defaults to
	// APIURL; OpenSky has historically served tracks from a separate
	// host, so it stays independently configurable.
	TracksAPIURL string `json:"tracks_api_url"`

	// TokenURL is the OAuth2 token endpoint
	TokenURL string `json:"token_url"`
}

// StatesURL returns the full states endpoint URL.
func (c *OpenSkyConfig) StatesURL() string {
	return strings.TrimRight(c.APIURL, "/") + "/states/all"
}

// TracksURL returns the full tracks endpoint URL.
func (c *OpenSkyConfig) TracksURL() string {
	base := c.TracksAPIURL
	if base == "" {
		base = c.APIURL
	}
	return strings.TrimRight(base, "/") + "/tracks/all"
}

// AviationStackConfig contains route metadata provider settings.
type AviationStackConfig struct {
	// APIKey for the AviationStack API. Route lookups are disabled
	// when empty.
	APIKey string `json:"api_key"`

	// BaseURL is the API base (default: "https://api.aviationstack.com/v1")
	BaseURL string `json:"base_url"`
}

// ElevationConfig contains terrain elevation provider settings.
type ElevationConfig struct {
	// BaseURL is the API base (default: "https://api.open-elevation.com")
	BaseURL string `json:"base_url"`
}

// BYOKConfig controls bring-your-own-key mode.
type BYOKConfig struct {
	// Enabled switches the service into BYOK mode: anonymous callers
	// get a tight global rate limit and clients may register their
	// own OpenSky credentials for a per-session allowance.
	Enabled bool `json:"enabled"`
}

// BroadcastConfig controls the periodic WebSocket flight broadcast.
type BroadcastConfig struct {
	// AnchorLatitude of the broadcast area center (default: Prague)
	AnchorLatitude float64 `json:"anchor_latitude"`

	// AnchorLongitude of the broadcast area center
	AnchorLongitude float64 `json:"anchor_longitude"`

	// AnchorRadiusKm is the broadcast area radius in kilometers
	AnchorRadiusKm float64 `json:"anchor_radius_km"`

	// IntervalSeconds between broadcasts
	IntervalSeconds int `json:"interval_seconds"`
}

// DemoConfig controls the demo data fallback.
type DemoConfig struct {
	// DataPath points at a JSON file of canned flights served when
	// the upstream provider is unavailable. Empty disables the
	// fallback; failed fetches then return an empty list.
	DataPath string `json:"data_path"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Environment variables override file values either way.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	return &cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		OpenSky: OpenSkyConfig{
			APIURL:   "https://opensky-network.org/api",
			TokenURL: opensky.DefaultTokenURL,
		},
		AviationStack: AviationStackConfig{
			BaseURL: aviationstack.BaseURL,
		},
		Elevation: ElevationConfig{
			BaseURL: elevation.BaseURL,
		},
		BYOK: BYOKConfig{
			Enabled: false,
		},
		Broadcast: BroadcastConfig{
			AnchorLatitude:  50.0755, // Prague
			AnchorLongitude: 14.4378,
			AnchorRadiusKm:  100.0,
			IntervalSeconds: 15,
		},
		Demo: DemoConfig{
			DataPath: "",
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides.
// This allows secrets like the client credentials to be kept out of
// config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if v := os.Getenv("BYOK"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.BYOK.Enabled = enabled
		}
	}
	if id := os.Getenv("OPENSKY_CLIENT_ID"); id != "" {
		c.OpenSky.ClientID = id
	}
	if secret := os.Getenv("OPENSKY_CLIENT_SECRET"); secret != "" {
		c.OpenSky.ClientSecret = secret
	}
	if apiURL := os.Getenv("OPENSKY_API_URL"); apiURL != "" {
		c.OpenSky.APIURL = apiURL
	}
	if tracksURL := os.Getenv("OPENSKY_TRACKS_API_URL"); tracksURL != "" {
		c.OpenSky.TracksAPIURL = tracksURL
	}
	if tokenURL := os.Getenv("OPENSKY_TOKEN_URL"); tokenURL != "" {
		c.OpenSky.TokenURL = tokenURL
	}
	if key := os.Getenv("AVIATIONSTACK_API_KEY"); key != "" {
		c.AviationStack.APIKey = key
	}
	if baseURL := os.Getenv("AVIATIONSTACK_API_URL"); baseURL != "" {
		c.AviationStack.BaseURL = baseURL
	}
	if baseURL := os.Getenv("ELEVATION_API_URL"); baseURL != "" {
		c.Elevation.BaseURL = baseURL
	}
	if path := os.Getenv("DEMO_DATA_PATH"); path != "" {
		c.Demo.DataPath = path
	}
}
