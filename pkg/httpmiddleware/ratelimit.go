package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token buckets.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window. The full amount is
	// also available as burst.
	Max int
	// Window is the period over which Max refills.
	Window time.Duration
	// KeyFunc derives the bucket key from a request. Client IP when nil.
	KeyFunc func(*http.Request) string
}

// visitor is one client's bucket plus the last time it was used. touched is
// atomic so the read-locked fast path can update it.
type visitor struct {
	bucket  *rate.Limiter
	touched atomic.Int64
}

// throttle maps clients to token buckets. Lookups take the read lock;
// first-contact inserts upgrade to the write lock and re-check.
type throttle struct {
	max    int
	refill rate.Limit
	window time.Duration
	key    func(*http.Request) string

	mu       sync.RWMutex
	visitors map[string]*visitor
}

func newThrottle(cfg RateLimitConfig) *throttle {
	key := cfg.KeyFunc
	if key == nil {
		key = clientIP
	}
	return &throttle{
		max:      cfg.Max,
		refill:   rate.Every(cfg.Window / time.Duration(cfg.Max)),
		window:   cfg.Window,
		key:      key,
		visitors: make(map[string]*visitor),
	}
}

func (t *throttle) visitorFor(key string, now time.Time) *visitor {
	t.mu.RLock()
	v := t.visitors[key]
	t.mu.RUnlock()

	if v == nil {
		t.mu.Lock()
		if v = t.visitors[key]; v == nil {
			v = &visitor{bucket: rate.NewLimiter(t.refill, t.max)}
			t.visitors[key] = v
		}
		t.mu.Unlock()
	}

	v.touched.Store(now.UnixNano())
	return v
}

// sweep drops visitors idle for at least two windows.
func (t *throttle) sweep(now time.Time) {
	floor := now.Add(-2 * t.window).UnixNano()

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, v := range t.visitors {
		if v.touched.Load() <= floor {
			delete(t.visitors, key)
		}
	}
}

func (t *throttle) sweepLoop(ctx context.Context) {
	tick := time.NewTicker(2 * t.window)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			t.sweep(now)
		}
	}
}

// RateLimit enforces a per-key token bucket. Exhausted buckets answer 429
// with Retry-After and a JSON body; every response carries X-RateLimit-Limit
// and X-RateLimit-Remaining.
//
// No eviction goroutine is started; use RateLimitWithCleanup for that.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newThrottle(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a background sweep of idle buckets
// every two windows, stopping when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	t := newThrottle(cfg)
	go t.sweepLoop(ctx)
	return t.middleware()
}

func (t *throttle) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			v := t.visitorFor(t.key(r), time.Now())
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(t.max))

			res := v.bucket.Reserve()
			if wait := res.Delay(); wait > 0 {
				res.Cancel()
				t.reject(w, wait)
				return
			}

			left := int(v.bucket.Tokens())
			if left < 0 {
				left = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

type throttledReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// reject answers 429 with the wait rounded up to whole seconds.
func (t *throttle) reject(w http.ResponseWriter, wait time.Duration) {
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(throttledReply{
		Code:    http.StatusTooManyRequests,
		Message: "rate limit exceeded",
	})
}

// clientIP keys buckets by the caller address: the first X-Forwarded-For
// hop, then X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
