package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	apiContext "praxis/internal/api/context"
)

func newTestLimiter(now *time.Time) *RateLimiter {
	return &RateLimiter{store: &sync.Map{}, now: func() time.Time { return *now }}
}

func TestRateLimiterAllow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&now)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("k", 3), "request %d", i)
	}
	assert.False(t, rl.Allow("k", 3))

	// One token per 20s at 3/min.
	now = now.Add(21 * time.Second)
	assert.True(t, rl.Allow("k", 3))
	assert.False(t, rl.Allow("k", 3))

	assert.True(t, rl.Allow("other", 3))
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&now)
	rl.Allow("idle", 5)

	rl.sweep(now.Add(5 * time.Minute))
	_, ok := rl.store.Load("idle")
	assert.True(t, ok)

	rl.sweep(now.Add(11 * time.Minute))
	_, ok = rl.store.Load("idle")
	assert.False(t, ok)
}

func TestRateLimitKeys(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl := newTestLimiter(&now)
	handler := rateLimitWith(rl, "signup")(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func(ip string, tenant *TenantContext) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations", nil)
		req.RemoteAddr = ip + ":5555"
		if tenant != nil {
			req = req.WithContext(context.WithValue(req.Context(), apiContext.Tenant, tenant))
		}
		rr := httptest.NewRecorder()
		handler(rr, req)
		return rr.Code
	}

	for i := 0; i < rateLimits["signup"]; i++ {
		assert.Equal(t, http.StatusOK, send("10.0.0.1", nil))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1", nil))
	assert.Equal(t, http.StatusOK, send("10.0.0.2", nil))

	// Tenant requests share a bucket regardless of IP.
	assert.Equal(t, http.StatusOK, send("10.0.0.1", &TenantContext{OrgID: "org_1"}))
}
