package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitMaxIP   = 300
	rateLimitMaxUser = 200
	rateLimitMaxAuth = 20
)

type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

// RateLimiter bounds requests per client IP and per authenticated user
// within a sliding window. Auth endpoints get a tighter per-IP budget.
type RateLimiter struct {
	byIP   *rateLimiter
	byUser *rateLimiter
	auth   *rateLimiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		byIP:   newRateLimiter(rateLimitMaxIP, rateLimitWindow),
		byUser: newRateLimiter(rateLimitMaxUser, rateLimitWindow),
		auth:   newRateLimiter(rateLimitMaxAuth, rateLimitWindow),
	}
}

func clientIP(r *http.Request) string {
	if x := r.Header.Get("X-Real-Ip"); x != "" {
		return x
	}
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		if idx := strings.Index(x, ","); idx > 0 {
			return strings.TrimSpace(x[:idx])
		}
		return x
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ByIP limits every request by client IP.
func (l *RateLimiter) ByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.byIP.allow(clientIP(r)) {
			writeFailure(w, http.StatusTooManyRequests, "Too many requests", "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ByUser limits authenticated requests; mount it after BearerAuth.
func (l *RateLimiter) ByUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := GetUserID(r.Context()); userID != "" && !l.byUser.allow("u:"+userID) {
			writeFailure(w, http.StatusTooManyRequests, "Too many requests", "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Auth limits login and refresh attempts by client IP.
func (l *RateLimiter) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.auth.allow("auth:" + clientIP(r)) {
			writeFailure(w, http.StatusTooManyRequests, "Too many attempts, try again later", "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}
