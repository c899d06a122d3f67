package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard-backend/internal/clock"
)

func limiterRequest(ip, ua string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	r.RemoteAddr = ip + ":54321"
	if ua != "" {
		r.Header.Set("User-Agent", ua)
	}
	return r
}

func TestRateLimiterBudgetAndReset(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(Policy{Name: "general", Window: time.Second, MaxRequests: 3}, 100, clk, nil)
	req := limiterRequest("203.0.113.7", "curl/8.0")

	for i, wantRemaining := range []int{2, 1, 0} {
		d := rl.Check(req)
		require.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, wantRemaining, d.Remaining)
	}

	d := rl.Check(req)
	require.False(t, d.Allowed, "fourth request in window should be denied")
	assert.Equal(t, 0, d.Remaining)
	assert.Contains(t, d.Message, "rate limit exceeded")
	assert.GreaterOrEqual(t, d.RetryAfter(clk.Now()), 1)

	// A fresh window restores the full budget.
	clk.Advance(1100 * time.Millisecond)
	d = rl.Check(req)
	require.True(t, d.Allowed, "request after window reset should be allowed")
	assert.Equal(t, 2, d.Remaining)

	stats := rl.Stats()
	assert.Equal(t, int64(4), stats.Allowed)
	assert.Equal(t, int64(1), stats.Denied)
}

func TestRateLimiterSeparatesUserAgents(t *testing.T) {
	rl := NewRateLimiter(Policy{Name: "general", Window: time.Minute, MaxRequests: 1}, 100, nil, nil)

	require.True(t, rl.Check(limiterRequest("203.0.113.7", "firefox")).Allowed)
	assert.False(t, rl.Check(limiterRequest("203.0.113.7", "firefox")).Allowed,
		"same IP and UA share a budget")
	assert.True(t, rl.Check(limiterRequest("203.0.113.7", "chrome")).Allowed,
		"different UA behind the same IP gets its own budget")
}

func TestRateLimiterIPOnly(t *testing.T) {
	rl := NewRateLimiter(Policy{Name: "strict", Window: time.Minute, MaxRequests: 1, IPOnly: true}, 100, nil, nil)

	require.True(t, rl.Check(limiterRequest("203.0.113.7", "firefox")).Allowed)
	assert.False(t, rl.Check(limiterRequest("203.0.113.7", "chrome")).Allowed,
		"IP-only policy must ignore the user-agent")
}

func TestRateLimiterFailPolicy(t *testing.T) {
	noIP := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	noIP.RemoteAddr = "not-an-address"

	open := NewRateLimiter(Policy{Name: "general", Window: time.Minute, MaxRequests: 1}, 100, nil, nil)
	assert.True(t, open.Check(noIP).Allowed, "fail-open policy allows unidentifiable requests")

	closed := NewRateLimiter(Policy{Name: "auth", Window: time.Minute, MaxRequests: 1, FailClosed: true}, 100, nil, nil)
	d := closed.Check(noIP)
	assert.False(t, d.Allowed, "fail-closed policy denies unidentifiable requests")
	assert.NotEmpty(t, d.Message)
}

func TestRateLimiterSkipIf(t *testing.T) {
	rl := NewRateLimiter(Policy{
		Name:        "general",
		Window:      time.Minute,
		MaxRequests: 1,
		SkipIf: func(r *http.Request) bool {
			return r.Header.Get("X-Internal") == "1"
		},
	}, 100, nil, nil)

	internal := limiterRequest("203.0.113.7", "svc")
	internal.Header.Set("X-Internal", "1")
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Check(internal).Allowed, "skipped request %d", i)
	}

	require.True(t, rl.Check(limiterRequest("203.0.113.7", "svc")).Allowed)
	assert.False(t, rl.Check(limiterRequest("203.0.113.7", "svc")).Allowed,
		"non-skipped requests still count")
}

func TestRateLimiterUpdatePolicy(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(Policy{Name: "form", Window: time.Minute, MaxRequests: 1}, 100, clk, nil)
	req := limiterRequest("203.0.113.9", "browser")

	require.True(t, rl.Check(req).Allowed)
	require.False(t, rl.Check(req).Allowed)

	rl.UpdatePolicy(time.Minute, 10)
	assert.True(t, rl.Check(req).Allowed, "raised budget applies to the live window")
}

// Widening the window at runtime must not let the store's original entry
// TTL evict a live counter mid-window and hand the caller a fresh budget.
func TestRateLimiterUpdatePolicyWidensStoreTTL(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(Policy{Name: "form", Window: 200 * time.Millisecond, MaxRequests: 1}, 100, clk, nil)
	req := limiterRequest("203.0.113.10", "browser")

	require.True(t, rl.Check(req).Allowed)
	rl.UpdatePolicy(10*time.Second, 1)
	require.False(t, rl.Check(req).Allowed, "budget stays spent across the reload")

	// Sit past the pre-reload store TTL (200ms * 1.5) but well inside the
	// widened window. The counter must survive.
	time.Sleep(500 * time.Millisecond)
	d := rl.Check(req)
	assert.False(t, d.Allowed, "counter evicted mid-window after reload widened the window")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
		wantOK     bool
	}{
		{
			name:       "socket address",
			remoteAddr: "192.0.2.1:1234",
			want:       "192.0.2.1",
			wantOK:     true,
		},
		{
			name:       "forwarded-for first entry wins",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			want:       "203.0.113.5",
			wantOK:     true,
		},
		{
			name:       "malformed forwarded-for falls back",
			remoteAddr: "192.0.2.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "garbage"},
			want:       "192.0.2.1",
			wantOK:     true,
		},
		{
			name:       "real-ip fallback",
			remoteAddr: "bogus",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			want:       "198.51.100.2",
			wantOK:     true,
		},
		{
			name:       "no derivable address",
			remoteAddr: "bogus",
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, ok := clientIP(r)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(Policy{Name: "general", Window: time.Second, MaxRequests: 2}, 100, clk, nil)

	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limiterRequest("203.0.113.7", "browser"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limiterRequest("203.0.113.7", "browser"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, rec.Body.String(), "error")
}
