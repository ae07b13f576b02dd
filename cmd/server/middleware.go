package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/skylens/skylens/internal/ratelimit"
)

// maxBodyBytes caps request bodies at 10 MB.
const maxBodyBytes = 10 << 20

// sessionToken extracts the BYOK session token from a request. The
// X-Session-Token header wins, then Authorization: Bearer, then the
// sessionToken query parameter for clients that cannot set headers.
func sessionToken(r *http.Request) string {
	if token := r.Header.Get("X-Session-Token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("sessionToken")
}

// rateLimitMiddleware enforces the caller's tier allowance and rejects
// with 429 once the window is spent.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, tier := s.limiterIdentity(r)
		decision := s.limiter.CheckTier(identity, tier)

		w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("RateLimit-Reset", strconv.Itoa(decision.ResetSeconds()))

		if !decision.Allowed {
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded",
				fmt.Sprintf("retry in %d seconds", decision.ResetSeconds()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// limiterIdentity picks the rate limit tier. Without BYOK every caller
// shares one generous bucket. With BYOK anonymous callers share a tight
// bucket and each credential session gets its own allowance; a token
// that no longer resolves counts as anonymous.
func (s *Server) limiterIdentity(r *http.Request) (string, ratelimit.Tier) {
	if !s.cfg.BYOK.Enabled {
		return "global", ratelimit.TierAnonymous
	}
	if token := sessionToken(r); token != "" {
		if sess := s.sessions.Resolve(token); sess != nil && sess.TokenManager.HasCredentials() {
			return "session:" + token, ratelimit.TierSession
		}
	}
	return "global", ratelimit.TierAnonymousBYOK
}
