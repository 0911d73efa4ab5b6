package ratelimit

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akinalp/chatflow/pkg"
)

func newTestGate(t *testing.T) (*TokenBucketGate, *time.Time) {
	t.Helper()
	g := NewTokenBucketGate(DefaultPolicies(), 0)
	t.Cleanup(g.Stop)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })
	return g, &now
}

func TestTokenBucketGate_UploadBudget(t *testing.T) {
	g, now := newTestGate(t)

	for i := 0; i < 10; i++ {
		if err := g.Allow(ClassUpload, "u1"); err != nil {
			t.Fatalf("request %d denied: %v", i+1, err)
		}
	}

	err := g.Allow(ClassUpload, "u1")
	if !errors.Is(err, pkg.ErrRateLimited) {
		t.Fatalf("11th request: got %v, want ErrRateLimited", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.RetryAfterSeconds() != 6 {
		t.Fatalf("retry after = %+v, want 6s", le)
	}

	*now = now.Add(6 * time.Second)
	if err := g.Allow(ClassUpload, "u1"); err != nil {
		t.Fatalf("after refill: %v", err)
	}
}

func TestTokenBucketGate_KeysAreIndependent(t *testing.T) {
	g, _ := newTestGate(t)

	for i := 0; i < 10; i++ {
		g.Allow(ClassUpload, "u1")
	}
	if err := g.Allow(ClassUpload, "u2"); err != nil {
		t.Fatalf("other user should not be limited: %v", err)
	}
	if err := g.Allow(ClassSignedURL, "u1"); err != nil {
		t.Fatalf("other class should not be limited: %v", err)
	}
}

func TestTokenBucketGate_SignedURLBudget(t *testing.T) {
	g, _ := newTestGate(t)

	for i := 0; i < 30; i++ {
		if err := g.Allow(ClassSignedURL, "u1"); err != nil {
			t.Fatalf("request %d denied: %v", i+1, err)
		}
	}
	if err := g.Allow(ClassSignedURL, "u1"); err == nil {
		t.Fatal("31st lookup should be denied")
	}
}

func TestTokenBucketGate_UnknownClassUnlimited(t *testing.T) {
	g, _ := newTestGate(t)
	for i := 0; i < 100; i++ {
		if err := g.Allow(Class("other"), "u1"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTokenBucketGate_CleanupDropsIdleBuckets(t *testing.T) {
	g, now := newTestGate(t)
	g.idleTTL = time.Minute

	g.Allow(ClassUpload, "u1")
	*now = now.Add(2 * time.Minute)
	g.cleanup()

	if len(g.buckets) != 0 {
		t.Fatalf("buckets = %d, want 0", len(g.buckets))
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "1.1.1.1,2.2.2.2"}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1", "3.3.3.3"},
		{"remote addr", nil, "4.4.4.4:5555", "4.4.4.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := ExtractIP(r); got != tt.want {
				t.Fatalf("ExtractIP = %q, want %q", got, tt.want)
			}
		})
	}
}
