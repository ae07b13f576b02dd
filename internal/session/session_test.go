package session

import (
	"regexp"
	"testing"
	"time"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s := NewStore(cfg)
	t.Cleanup(s.Close)
	return s
}

func TestCreateIssuesHexTokens(t *testing.T) {
	store := newTestStore(t, Config{})

	hexToken := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		sess, err := store.Create("client-id", "client-secret")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if !hexToken.MatchString(sess.Token) {
			t.Fatalf("token %q is not 128-bit hex", sess.Token)
		}
		if seen[sess.Token] {
			t.Fatalf("token %q issued twice", sess.Token)
		}
		seen[sess.Token] = true
	}
	if store.Count() != 10 {
		t.Errorf("Count = %d, want 10", store.Count())
	}
}

func TestCreateBindsDedicatedTokenManager(t *testing.T) {
	store := newTestStore(t, Config{})

	a, err := store.Create("id-a", "secret-a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b, err := store.Create("id-b", "secret-b")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if a.TokenManager == nil || b.TokenManager == nil {
		t.Fatal("sessions must carry a token manager")
	}
	if a.TokenManager == b.TokenManager {
		t.Error("sessions share a token manager")
	}
	if !a.TokenManager.HasCredentials() {
		t.Error("session manager lost its credentials")
	}
}

func TestResolve(t *testing.T) {
	store := newTestStore(t, Config{})

	sess, err := store.Create("id", "secret")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if got := store.Resolve(sess.Token); got != sess {
		t.Errorf("Resolve returned %+v, want the created session", got)
	}
	if got := store.Resolve("deadbeefdeadbeefdeadbeefdeadbeef"); got != nil {
		t.Errorf("Resolve of unknown token = %+v, want nil", got)
	}
}

func TestResolveRemovesExpired(t *testing.T) {
	store := newTestStore(t, Config{Lifetime: 20 * time.Millisecond, SweepInterval: time.Hour})

	sess, err := store.Create("id", "secret")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if got := store.Resolve(sess.Token); got != nil {
		t.Errorf("Resolve of expired session = %+v, want nil", got)
	}
	if store.Count() != 0 {
		t.Errorf("expired session still stored, Count = %d", store.Count())
	}
}

func TestHas(t *testing.T) {
	store := newTestStore(t, Config{Lifetime: 30 * time.Millisecond, SweepInterval: time.Hour})

	sess, err := store.Create("id", "secret")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !store.Has(sess.Token) {
		t.Error("Has returned false for a live session")
	}
	if store.Has("deadbeefdeadbeefdeadbeefdeadbeef") {
		t.Error("Has returned true for an unknown token")
	}

	time.Sleep(60 * time.Millisecond)
	if store.Has(sess.Token) {
		t.Error("Has returned true for an expired session")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t, Config{})

	sess, err := store.Create("id", "secret")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !store.Delete(sess.Token) {
		t.Error("Delete of existing session returned false")
	}
	if store.Delete(sess.Token) {
		t.Error("Delete of removed session returned true")
	}
	if got := store.Resolve(sess.Token); got != nil {
		t.Errorf("Resolve after Delete = %+v, want nil", got)
	}
}

func TestBackgroundSweep(t *testing.T) {
	store := newTestStore(t, Config{Lifetime: 10 * time.Millisecond, SweepInterval: 20 * time.Millisecond})

	if _, err := store.Create("id", "secret"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for store.Count() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not remove the expired session, Count = %d", store.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	store := NewStore(Config{})
	store.Close()
	store.Close()
}

func TestAbbrev(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0123456789abcdef0123456789abcdef", "01234567"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Abbrev(tt.in); got != tt.want {
			t.Errorf("Abbrev(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
