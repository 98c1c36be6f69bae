package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

type fakeLimiter struct {
	counts map[string]int64
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitIsPerUser(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	handler := RateLimit(NewRateLimitPolicy("api", time.Minute, 2), limiter, nil)(okHandler())

	alice := WithActor(context.Background(), auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	bob := WithActor(context.Background(), auth.Actor{UserID: uuid.New(), Role: enums.UserRoleBuyer})

	codes := []int{}
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(alice))
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(bob))
	if resp.Code != http.StatusOK {
		t.Fatalf("other user should have its own budget, got %d", resp.Code)
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	handler := RateLimit(NewRateLimitPolicy("webhooks", time.Minute, 1), limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.counts["webhooks:ip:203.0.113.7"] != 1 {
		t.Fatalf("expected ip scoped counter, got %v", limiter.counts)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	handler := RateLimit(NewRateLimitPolicy("api", 0, 0), limiter, nil)(okHandler())
	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", resp.Code)
		}
	}
	if len(limiter.counts) != 0 {
		t.Fatalf("disabled policy should not touch the store")
	}
}
