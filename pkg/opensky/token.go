package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultTokenURL is the OpenSky OAuth2 client-credentials endpoint.
const DefaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

const (
	// defaultTokenLifetime applies when the token endpoint omits expires_in
	defaultTokenLifetime = 1800 * time.Second

	// expirySkew retires tokens this long before their hard expiry
	expirySkew = 60 * time.Second

	// refreshTimeout bounds one token exchange
	refreshTimeout = 10 * time.Second
)

// TokenStatus describes a manager's auth history for the status and debug
// surfaces. Timestamps are unix milliseconds, zero when the event never
// happened.
type TokenStatus struct {
	CredentialsConfigured bool   `json:"credentialsConfigured"`
	LastAuthSuccessAt     int64  `json:"lastAuthSuccessAt,omitempty"`
	LastAuthErrorAt       int64  `json:"lastAuthErrorAt,omitempty"`
	LastAuthErrorMessage  string `json:"lastAuthErrorMessage,omitempty"`
	TokenExpiresAt        int64  `json:"tokenExpiresAt,omitempty"`
}

// inflightRefresh is the single promise slot concurrent callers wait on.
// header and err are written exactly once before done is closed.
type inflightRefresh struct {
	done   chan struct{}
	header string
	err    error
}

// TokenManager caches one OAuth2 client-credentials token and coalesces
// concurrent refreshes into a single exchange. A manager without
// credentials hands out empty headers for anonymous access.
type TokenManager struct {
	tokenURL   string
	httpClient *http.Client

	mu           sync.Mutex
	clientID     string
	clientSecret string
	token        string
	expiresAt    time.Time
	inflight     *inflightRefresh

	lastSuccess  time.Time
	lastFailure  time.Time
	lastErrorMsg string
}

// NewTokenManager builds a manager for the given credentials. An empty
// tokenURL selects the OpenSky production endpoint.
func NewTokenManager(clientID, clientSecret, tokenURL string) *TokenManager {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &TokenManager{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: refreshTimeout},
	}
}

// HasCredentials reports whether a client id and secret are configured.
func (m *TokenManager) HasCredentials() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID != "" && m.clientSecret != ""
}

// AuthorizationHeader returns a value for the Authorization request
// header, or the empty string when no credentials are configured. The
// cached token is reused while it has more than a minute of life left;
// otherwise one refresh runs and every concurrent caller waits for its
// outcome. force discards the cached token first.
//
// The refresh itself runs on a detached context so one caller's
// cancellation cannot poison the outcome shared by other waiters; a
// cancelled caller gets its own ctx error back.
func (m *TokenManager) AuthorizationHeader(ctx context.Context, force bool) (string, error) {
	m.mu.Lock()
	if m.clientID == "" || m.clientSecret == "" {
		m.mu.Unlock()
		return "", nil
	}
	if force {
		m.token = ""
		m.expiresAt = time.Time{}
	}
	if m.token != "" && time.Now().Before(m.expiresAt.Add(-expirySkew)) {
		header := "Bearer " + m.token
		m.mu.Unlock()
		return header, nil
	}
	if m.inflight == nil {
		fl := &inflightRefresh{done: make(chan struct{})}
		m.inflight = fl
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", m.clientID)
		form.Set("client_secret", m.clientSecret)
		go m.refresh(fl, form)
	}
	fl := m.inflight
	m.mu.Unlock()

	select {
	case <-fl.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return fl.header, fl.err
}

// Invalidate atomically discards the cached token; the next
// AuthorizationHeader call performs a fresh exchange.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

// Status returns a snapshot of the manager's auth history.
func (m *TokenManager) Status() TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TokenStatus{
		CredentialsConfigured: m.clientID != "" && m.clientSecret != "",
		LastAuthSuccessAt:     unixMilliOrZero(m.lastSuccess),
		LastAuthErrorAt:       unixMilliOrZero(m.lastFailure),
		LastAuthErrorMessage:  m.lastErrorMsg,
		TokenExpiresAt:        unixMilliOrZero(m.expiresAt),
	}
}

func (m *TokenManager) refresh(fl *inflightRefresh, form url.Values) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	token, lifetime, err := m.exchange(ctx, form)

	m.mu.Lock()
	now := time.Now()
	if err != nil {
		m.lastFailure = now
		m.lastErrorMsg = err.Error()
		fl.err = err
	} else {
		m.token = token
		m.expiresAt = now.Add(lifetime)
		m.lastSuccess = now
		fl.header = "Bearer " + token
	}
	m.inflight = nil
	m.mu.Unlock()
	close(fl.done)
}

func (m *TokenManager) exchange(ctx context.Context, form url.Values) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", 0, &APIError{Type: ErrTypeNetwork, Message: fmt.Sprintf("token request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, &APIError{
			Type:       ClassifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, fmt.Errorf("token response missing access_token")
	}

	lifetime := defaultTokenLifetime
	if tokenResp.ExpiresIn > 0 {
		lifetime = time.Duration(tokenResp.ExpiresIn) * time.Second
	}
	return tokenResp.AccessToken, lifetime, nil
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
