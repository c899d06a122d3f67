// Package middleware provides the HTTP middleware stack: rate limiting,
// circuit breaking, request identification, panic recovery, and request
// timeouts.
package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"jobboard-backend/internal/clock"
)

// Policy describes one rate-limit class. Named policies with different
// windows and budgets apply to different route classes (general API,
// strict/admin, form submission, auth).
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int

	// IPOnly keys callers by IP alone instead of IP plus hashed
	// user-agent. Admin-tier checks use this.
	IPOnly bool

	// FailClosed decides what happens when the limiter itself cannot
	// evaluate a request (no derivable fingerprint): deny when true,
	// allow when false. Admin and auth tiers run fail-closed; public
	// tiers fail open so a broken proxy header cannot take reads down.
	FailClosed bool

	// SkipIf bypasses the limiter entirely when it returns true, e.g.
	// for trusted internal calls.
	SkipIf func(r *http.Request) bool
}

// Decision is the outcome of one rate-limit check, carrying everything a
// handler needs to build a 429 response.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
	Message   string
}

// RetryAfter returns the Retry-After header value in whole seconds.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetTime.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// windowEntry is one caller's sliding-window counter.
type windowEntry struct {
	count int
	reset time.Time
}

// RateLimiter is a sliding-window-by-reset request limiter for one policy.
// Window entries live in an expirable LRU whose TTL is the window plus
// slack, so abandoned fingerprints age out on their own.
//
// State is process-local: each instance behind a load balancer enforces
// its own independent budget.
type RateLimiter struct {
	mu       sync.Mutex
	policy   Policy
	store    *lru.LRU[string, *windowEntry]
	capacity int
	allowed  int64
	denied   int64

	clock  clock.Clock
	logger *zap.Logger
}

// RateLimiterStats is a snapshot for monitoring hooks.
type RateLimiterStats struct {
	Policy  string `json:"policy"`
	Allowed int64  `json:"allowed"`
	Denied  int64  `json:"denied"`
	Tracked int    `json:"tracked"`
}

// NewRateLimiter creates a limiter for the given policy with at most
// capacity tracked fingerprints.
func NewRateLimiter(policy Policy, capacity int, clk clock.Clock, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if capacity <= 0 {
		capacity = 10000
	}
	return &RateLimiter{
		policy:   policy,
		store:    lru.NewLRU[string, *windowEntry](capacity, nil, storeTTL(policy.Window)),
		capacity: capacity,
		clock:    clk,
		logger:   logger,
	}
}

// storeTTL is the window-store entry lifetime: the policy window plus
// slack, so a just-reset counter is never evicted mid-window.
func storeTTL(window time.Duration) time.Duration {
	return window + window/2
}

// Check evaluates one request against the policy. The counter resets to 1
// whenever the window has elapsed; otherwise it increments and the request
// is allowed while count stays within budget.
func (rl *RateLimiter) Check(r *http.Request) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	policy := rl.policy
	now := rl.clock.Now()

	if policy.SkipIf != nil && policy.SkipIf(r) {
		return Decision{Allowed: true, Limit: policy.MaxRequests, Remaining: policy.MaxRequests, ResetTime: now.Add(policy.Window)}
	}

	key, ok := rl.fingerprint(r)
	if !ok {
		if policy.FailClosed {
			rl.denied++
			return Decision{
				Allowed:   false,
				Limit:     policy.MaxRequests,
				Remaining: 0,
				ResetTime: now.Add(policy.Window),
				Message:   "request could not be identified",
			}
		}
		rl.allowed++
		return Decision{Allowed: true, Limit: policy.MaxRequests, Remaining: policy.MaxRequests, ResetTime: now.Add(policy.Window)}
	}

	entry, exists := rl.store.Get(key)
	if !exists || now.After(entry.reset) {
		entry = &windowEntry{count: 1, reset: now.Add(policy.Window)}
		rl.store.Add(key, entry)
	} else {
		entry.count++
	}

	remaining := policy.MaxRequests - entry.count
	if remaining < 0 {
		remaining = 0
	}

	if entry.count > policy.MaxRequests {
		rl.denied++
		return Decision{
			Allowed:   false,
			Limit:     policy.MaxRequests,
			Remaining: 0,
			ResetTime: entry.reset,
			Message:   fmt.Sprintf("%s rate limit exceeded, retry later", policy.Name),
		}
	}

	rl.allowed++
	return Decision{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: remaining,
		ResetTime: entry.reset,
	}
}

// UpdatePolicy swaps the window and budget at runtime. Used by the config
// watcher for hot reloads; the key scheme and fail policy are fixed.
func (rl *RateLimiter) UpdatePolicy(window time.Duration, maxRequests int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if window > 0 && window != rl.policy.Window {
		rl.policy.Window = window
		// The store's entry TTL is fixed at construction; a widened
		// window would outlive it and counters would be evicted
		// mid-window, silently granting fresh budgets. Rebuild the
		// store with a TTL matching the new window, carrying the live
		// counters over.
		rebuilt := lru.NewLRU[string, *windowEntry](rl.capacity, nil, storeTTL(window))
		for _, key := range rl.store.Keys() {
			if entry, ok := rl.store.Get(key); ok {
				rebuilt.Add(key, entry)
			}
		}
		rl.store = rebuilt
	}
	if maxRequests > 0 {
		rl.policy.MaxRequests = maxRequests
	}
	rl.logger.Info("rate limit policy updated",
		zap.String("policy", rl.policy.Name),
		zap.Duration("window", rl.policy.Window),
		zap.Int("max", rl.policy.MaxRequests),
	)
}

// Stats returns allowed/denied counters and the tracked-fingerprint count.
func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return RateLimiterStats{
		Policy:  rl.policy.Name,
		Allowed: rl.allowed,
		Denied:  rl.denied,
		Tracked: rl.store.Len(),
	}
}

// fingerprint derives the caller key: validated client IP, plus a cheap
// hash of the user-agent unless the policy is IP-only. Hashing the UA
// separates NAT'd users sharing one IP without storing the raw string.
func (rl *RateLimiter) fingerprint(r *http.Request) (string, bool) {
	ip, ok := clientIP(r)
	if !ok {
		return "", false
	}
	if rl.policy.IPOnly {
		return ip, true
	}
	ua := r.Header.Get("User-Agent")
	return fmt.Sprintf("%s:%x", ip, xxhash.Sum64String(ua)), true
}

// clientIP extracts the client address from forwarded headers (first
// entry, format-validated) with a fallback to the socket address.
func clientIP(r *http.Request) (string, bool) {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String(), true
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		if ip := net.ParseIP(real); ip != nil {
			return ip.String(), true
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), true
	}
	return "", false
}

// RateLimit wraps a handler with the limiter, setting X-RateLimit-* headers
// on every response and translating denials into 429 with Retry-After.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := rl.Check(r)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetTime.Unix(), 10))

			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter(rl.clock.Now())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				msg := decision.Message
				if msg == "" {
					msg = "too many requests"
				}
				fmt.Fprintf(w, `{"error":%q}`, msg)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
