package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// hit sends one GET through the handler, optionally overriding the remote
// address and adding headers.
func hit(h http.Handler, remote string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler)

	for i := range 5 {
		w := hit(h, "192.0.2.1:1111", nil)
		require.Equalf(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler)
	hit(h, "192.0.2.2:1111", nil)
	hit(h, "192.0.2.2:1111", nil)

	w := hit(h, "192.0.2.2:1111", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var reply throttledReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, http.StatusTooManyRequests, reply.Code)
	assert.Equal(t, "rate limit exceeded", reply.Message)
}

func TestRateLimitRemainingCountsDown(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 10, Window: time.Minute})(okHandler)

	w := hit(h, "192.0.2.3:1111", nil)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.4:1111", nil).Code)
	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.5:1111", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.0.2.4:2222", nil).Code,
		"a new source port must not reset the bucket")
}

func TestRateLimitCustomKey(t *testing.T) {
	cfg := RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-API-Key")
		},
	}
	h := RateLimit(cfg)(okHandler)

	assert.Equal(t, http.StatusOK, hit(h, "", map[string]string{"X-API-Key": "key-a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "", map[string]string{"X-API-Key": "key-a"}).Code)
	assert.Equal(t, http.StatusOK, hit(h, "", map[string]string{"X-API-Key": "key-b"}).Code)
}

func TestRateLimitForwardedFor(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler)
	fwd := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}

	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.6:1111", fwd).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.0.2.7:1111", fwd).Code,
		"the first forwarded hop is the bucket key")
}

func TestSweepDropsIdleVisitors(t *testing.T) {
	th := newThrottle(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Now()
	th.visitorFor("idle", start)
	th.visitorFor("busy", start.Add(100*time.Second))

	th.sweep(start.Add(3 * time.Minute))

	th.mu.RLock()
	defer th.mu.RUnlock()
	assert.NotContains(t, th.visitors, "idle")
	assert.Contains(t, th.visitors, "busy")
}
