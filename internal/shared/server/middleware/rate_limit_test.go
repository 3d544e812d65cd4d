package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func rateLimitedRouter(limiter *RateLimiter, rules map[string]RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{
		Rules:        rules,
		DefaultGroup: "DEFAULT",
		Limiter:      limiter,
	}))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(func() time.Time { return now })
	r := rateLimitedRouter(limiter, map[string]RateLimitRule{"DEFAULT": {Rate: 1, Burst: 3}})

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.Code)
		}
	}
}

func TestRateLimitBlocksPastBurst(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(func() time.Time { return now })
	r := rateLimitedRouter(limiter, map[string]RateLimitRule{"DEFAULT": {Rate: 1, Burst: 1}})

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/x", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/x", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRateLimitRefillsOverTime(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(func() time.Time { return now })
	r := rateLimitedRouter(limiter, map[string]RateLimitRule{"DEFAULT": {Rate: 1, Burst: 1}})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	blocked := httptest.NewRecorder()
	r.ServeHTTP(blocked, httptest.NewRequest(http.MethodPost, "/x", nil))
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", blocked.Code)
	}

	now = now.Add(2 * time.Second)
	allowed := httptest.NewRecorder()
	r.ServeHTTP(allowed, httptest.NewRequest(http.MethodPost, "/x", nil))
	if allowed.Code != http.StatusOK {
		t.Fatalf("expected refill to allow, got %d", allowed.Code)
	}
}

func TestRateLimitUnknownGroupPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(nil)
	r := rateLimitedRouter(limiter, map[string]RateLimitRule{"OTHER": {Rate: 1, Burst: 1}})

	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/x", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", resp.Code)
		}
	}
}

func TestRateLimiterKeysIndependent(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 1, Burst: 1}

	if ok, _ := limiter.Allow("a|G", rule); !ok {
		t.Fatalf("expected first key allowed")
	}
	if ok, _ := limiter.Allow("a|G", rule); ok {
		t.Fatalf("expected first key exhausted")
	}
	if ok, _ := limiter.Allow("b|G", rule); !ok {
		t.Fatalf("expected independent bucket for second key")
	}
}
