// Package ratelimit implements fixed-window request limits for the API.
// Anonymous traffic shares one global window; credential sessions each
// get their own. Windows are counted, not sliding, so a burst at a
// window boundary can briefly see up to twice the limit.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Tier describes one rate limit bucket.
type Tier struct {
	Name   string
	Limit  int
	Window time.Duration
}

// The three request tiers. Anonymous traffic is throttled much harder
// when bring-your-own-key mode is on, to push users toward registering
// their own credentials.
var (
	TierAnonymous     = Tier{Name: "anonymous", Limit: 100, Window: 15 * time.Minute}
	TierAnonymousBYOK = Tier{Name: "anonymous-byok", Limit: 10, Window: time.Minute}
	TierSession       = Tier{Name: "session", Limit: 100, Window: 15 * time.Minute}
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// ResetSeconds returns the whole seconds until the window resets,
// rounded up, for the RateLimit-Reset header.
func (d Decision) ResetSeconds() int {
	s := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
	if s < 0 {
		return 0
	}
	return s
}

type windowState struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed windows per identity.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string]*windowState
	lastPrune time.Time
}

// How often expired windows are scanned out of the map.
const pruneInterval = time.Minute

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{windows: make(map[string]*windowState)}
}

// Check consumes one request from the identity's current window and
// reports whether it was within the limit. A denied request consumes
// nothing.
func (l *Limiter) Check(identity string, limit int, window time.Duration) Decision {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybePrune(now)

	w, ok := l.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		w = &windowState{resetAt: now.Add(window)}
		l.windows[identity] = w
	}

	d := Decision{Limit: limit, ResetAt: w.resetAt}
	if w.count >= limit {
		return d
	}
	w.count++
	d.Allowed = true
	d.Remaining = limit - w.count
	return d
}

// CheckTier is Check with the tier's limit and window.
func (l *Limiter) CheckTier(identity string, tier Tier) Decision {
	return l.Check(identity, tier.Limit, tier.Window)
}

// maybePrune drops expired windows. Runs at most once per
// pruneInterval so Check stays O(1) in the common case. Caller holds
// the mutex.
func (l *Limiter) maybePrune(now time.Time) {
	if now.Sub(l.lastPrune) < pruneInterval {
		return
	}
	l.lastPrune = now
	for identity, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, identity)
		}
	}
}
