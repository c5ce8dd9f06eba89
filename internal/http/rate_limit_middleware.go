package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// memoryRateLimiter keeps one window per key and prunes expired windows lazily.
type memoryRateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*rateWindow
	now       func() time.Time
	nextSweep time.Time
}

type rateWindow struct {
	count int
	end   time.Time
}

// NewMemoryRateLimiter returns a process-local limiter.
func NewMemoryRateLimiter() RateLimiter {
	return newMemoryRateLimiter(time.Now)
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{
		windows:   make(map[string]*rateWindow),
		now:       now,
		nextSweep: now().Add(rateLimiterSweepInterval),
	}
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweep(now)

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.end) {
		w = &rateWindow{end: now.Add(window)}
		rl.windows[key] = w
	}
	if w.count >= limit {
		return rateDecision{allowed: false, count: w.count, windowEnd: w.end}
	}
	w.count++
	return rateDecision{allowed: true, count: w.count, windowEnd: w.end}
}

// sweep expects rl.mu to be held.
func (rl *memoryRateLimiter) sweep(now time.Time) {
	if now.Before(rl.nextSweep) {
		return
	}
	for key, w := range rl.windows {
		if !now.Before(w.end) {
			delete(rl.windows, key)
		}
	}
	rl.nextSweep = now.Add(rateLimiterSweepInterval)
}

func (rl *memoryRateLimiter) Close() {}

// withClassLimit applies the read budget to GET and HEAD requests and the write
// budget to everything else, per client IP.
func (r *Router) withClassLimit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		class, limit := "write", r.writeLimit
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			class, limit = "read", r.readLimit
		}
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		decision := r.limiter.Allow(class+":"+rateLimitKeyIP(req), limit, rateWindowDefault)
		r.applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route, class)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// rateLimitKeyIP keys on the peer address; forwarded headers are not trusted here.
func rateLimitKeyIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(req.RemoteAddr)
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}
