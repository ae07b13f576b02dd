// Package session manages bring-your-own-key credential sessions.
// Each session binds one OpenSky client credential pair to an opaque
// token and a dedicated token manager, so credentials from different
// users never share OAuth state.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/skylens/skylens/pkg/opensky"
)

const (
	// DefaultLifetime is how long a credential session stays valid
	DefaultLifetime = 24 * time.Hour

	// DefaultSweepInterval between scans for expired sessions
	DefaultSweepInterval = 5 * time.Minute
)

// Session is one registered credential pair. The token is the only
// thing clients ever see; the credentials stay server-side inside the
// dedicated token manager.
type Session struct {
	Token        string
	TokenManager *opensky.TokenManager
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Config holds session store configuration.
type Config struct {
	TokenURL      string        // OAuth token endpoint for per-session managers
	Lifetime      time.Duration // How long sessions are valid (default: 24h)
	SweepInterval time.Duration // How often expired sessions are swept (default: 5m)
}

// Store holds active credential sessions and sweeps out expired ones
// in the background.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	tokenURL string
	lifetime time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewStore creates a session store and starts its background sweeper.
// Call Close to stop the sweeper.
func NewStore(cfg Config) *Store {
	if cfg.Lifetime == 0 {
		cfg.Lifetime = DefaultLifetime
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	s := &Store{
		sessions: make(map[string]*Session),
		tokenURL: cfg.TokenURL,
		lifetime: cfg.Lifetime,
		done:     make(chan struct{}),
	}
	go s.sweepLoop(cfg.SweepInterval)
	return s
}

// Create registers a credential pair under a fresh opaque token and
// returns the new session. The caller is expected to have validated the
// credentials against the upstream first.
func (s *Store) Create(clientID, clientSecret string) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now()
	sess := &Session{
		Token:        token,
		TokenManager: opensky.NewTokenManager(clientID, clientSecret, s.tokenURL),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.lifetime),
	}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	log.Printf("🔑 Created credential session %s (expires %s)", Abbrev(token), sess.ExpiresAt.Format(time.RFC3339))
	return sess, nil
}

// Resolve returns the session for a token, or nil. An expired session
// is removed on the spot and resolves to nil.
func (s *Store) Resolve(token string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, token)
		log.Printf("⏰ Credential session %s expired", Abbrev(token))
		return nil
	}
	return sess
}

// Has reports whether an unexpired session exists for the token,
// without touching the record.
func (s *Store) Has(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	return ok && time.Now().Before(sess.ExpiresAt)
}

// Delete removes a session and reports whether it existed.
func (s *Store) Delete(token string) bool {
	s.mu.Lock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()

	if ok {
		log.Printf("🗑️ Deleted credential session %s", Abbrev(token))
	}
	return ok
}

// Count returns the number of sessions currently held, expired ones
// not yet swept included.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the background sweeper. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				log.Printf("🧹 Swept %d expired credential session(s)", n)
			}
		}
	}
}

func (s *Store) sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Abbrev shortens a session token for log output. Full tokens never
// reach the logs.
func Abbrev(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

// newToken returns 128 bits of hex from the system CSPRNG.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
