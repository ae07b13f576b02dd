package ratelimit

import (
	"testing"
	"time"
)

func TestCheckCountsDownToDenial(t *testing.T) {
	l := New()

	var resetAt time.Time
	for i := 0; i < 3; i++ {
		d := l.Check("global", 3, time.Hour)
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		if d.Limit != 3 {
			t.Errorf("Limit = %d, want 3", d.Limit)
		}
		if want := 2 - i; d.Remaining != want {
			t.Errorf("request %d Remaining = %d, want %d", i+1, d.Remaining, want)
		}
		if i == 0 {
			resetAt = d.ResetAt
		} else if !d.ResetAt.Equal(resetAt) {
			t.Errorf("ResetAt moved within the window: %v -> %v", resetAt, d.ResetAt)
		}
	}

	d := l.Check("global", 3, time.Hour)
	if d.Allowed {
		t.Fatal("request over the limit was allowed")
	}
	if d.Remaining != 0 {
		t.Errorf("denied Remaining = %d, want 0", d.Remaining)
	}
	if !d.ResetAt.Equal(resetAt) {
		t.Errorf("denial moved ResetAt: %v -> %v", resetAt, d.ResetAt)
	}
}

func TestDenialDoesNotConsume(t *testing.T) {
	l := New()

	l.Check("id", 1, 40*time.Millisecond)
	for i := 0; i < 5; i++ {
		if d := l.Check("id", 1, 40*time.Millisecond); d.Allowed {
			t.Fatal("request over the limit was allowed")
		}
	}

	time.Sleep(60 * time.Millisecond)
	if d := l.Check("id", 1, 40*time.Millisecond); !d.Allowed {
		t.Error("request after window reset was denied")
	}
}

func TestWindowResets(t *testing.T) {
	l := New()

	first := l.Check("id", 1, 30*time.Millisecond)
	if !first.Allowed {
		t.Fatal("first request denied")
	}
	if d := l.Check("id", 1, 30*time.Millisecond); d.Allowed {
		t.Fatal("second request in window allowed")
	}

	time.Sleep(50 * time.Millisecond)

	d := l.Check("id", 1, 30*time.Millisecond)
	if !d.Allowed {
		t.Fatal("request in fresh window denied")
	}
	if !d.ResetAt.After(first.ResetAt) {
		t.Errorf("fresh window ResetAt %v not after old %v", d.ResetAt, first.ResetAt)
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l := New()

	if d := l.Check("a", 1, time.Hour); !d.Allowed {
		t.Fatal("first request for a denied")
	}
	if d := l.Check("a", 1, time.Hour); d.Allowed {
		t.Fatal("a over the limit was allowed")
	}
	if d := l.Check("b", 1, time.Hour); !d.Allowed {
		t.Error("exhausting a also throttled b")
	}
}

func TestCheckTier(t *testing.T) {
	l := New()

	d := l.CheckTier("session:abc", TierAnonymousBYOK)
	if !d.Allowed {
		t.Fatal("first tier request denied")
	}
	if d.Limit != TierAnonymousBYOK.Limit {
		t.Errorf("Limit = %d, want %d", d.Limit, TierAnonymousBYOK.Limit)
	}
	if d.Remaining != TierAnonymousBYOK.Limit-1 {
		t.Errorf("Remaining = %d, want %d", d.Remaining, TierAnonymousBYOK.Limit-1)
	}
}

func TestResetSeconds(t *testing.T) {
	d := Decision{ResetAt: time.Now().Add(90 * time.Second)}
	if s := d.ResetSeconds(); s < 89 || s > 91 {
		t.Errorf("ResetSeconds = %d, want about 90", s)
	}

	past := Decision{ResetAt: time.Now().Add(-time.Second)}
	if s := past.ResetSeconds(); s != 0 {
		t.Errorf("ResetSeconds for past reset = %d, want 0", s)
	}
}

func TestPruneDropsExpiredWindows(t *testing.T) {
	l := New()

	l.Check("stale", 5, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// force the next Check to run a prune pass
	l.mu.Lock()
	l.lastPrune = time.Time{}
	l.mu.Unlock()

	l.Check("fresh", 5, time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.windows["stale"]; ok {
		t.Error("expired window survived the prune")
	}
	if _, ok := l.windows["fresh"]; !ok {
		t.Error("live window was pruned")
	}
}
