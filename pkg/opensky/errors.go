package opensky

import (
	"errors"
	"fmt"
	"net/http"
)

// Error type tags carried into response envelopes.
const (
	ErrTypeOpenSky = "opensky"
	ErrTypeServer  = "server"
	ErrTypeNetwork = "network"
)

// APIError describes an upstream failure in the shape the HTTP envelope
// exposes to clients.
type APIError struct {
	Type       string `json:"type"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// ClassifyStatus maps an upstream HTTP status to an error type tag:
// provider-level statuses (401/403/429/503) are "opensky", remaining 5xx
// are "server", anything else unexpected stays "opensky".
func ClassifyStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return ErrTypeOpenSky
	}
	if status >= 500 {
		return ErrTypeServer
	}
	return ErrTypeOpenSky
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTransient reports whether err is worth retrying: network failures and
// any 5xx, including the provider-tagged 503.
func IsTransient(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	if apiErr.Type == ErrTypeNetwork {
		return true
	}
	return apiErr.StatusCode >= 500
}
