package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
)

func TestMemoryThrottler_AllowsBurstThenDenies(t *testing.T) {
	m := newMemoryThrottler(ThrottleConfig{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer m.Stop()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d within burst was denied", i+1)
		}
	}

	ok, _ := m.Allow(ctx, "10.0.0.1")
	if ok {
		t.Error("request beyond burst was allowed")
	}
}

func TestMemoryThrottler_KeysAreIndependent(t *testing.T) {
	m := newMemoryThrottler(ThrottleConfig{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer m.Stop()

	ctx := context.Background()
	if ok, _ := m.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("first request for first ip denied")
	}
	if ok, _ := m.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("second request for first ip should be denied")
	}
	if ok, _ := m.Allow(ctx, "10.0.0.2"); !ok {
		t.Error("first request for a different ip must not share the bucket")
	}
}

func TestMemoryThrottler_RefillsOverTime(t *testing.T) {
	m := newMemoryThrottler(ThrottleConfig{
		RequestsPerMinute: 6000, // 100/s so the test refills quickly
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer m.Stop()

	ctx := context.Background()
	m.Allow(ctx, "10.0.0.1")
	if ok, _ := m.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)
	if ok, _ := m.Allow(ctx, "10.0.0.1"); !ok {
		t.Error("bucket did not refill after waiting")
	}
}

func TestNewThrottler_SelectsBackend(t *testing.T) {
	tc := AccessThrottleConfig()

	mem := NewThrottler(config.RedisConfig{Enabled: false}, tc)
	defer mem.Stop()
	if mem.Backend() != "memory" {
		t.Errorf("backend = %q, want memory", mem.Backend())
	}

	red := NewThrottler(config.RedisConfig{Enabled: true, Address: "localhost:6379"}, tc)
	defer red.Stop()
	if red.Backend() != "redis" {
		t.Errorf("backend = %q, want redis", red.Backend())
	}
}

func TestThrottleMiddleware_Returns429WithRetryAfter(t *testing.T) {
	m := newMemoryThrottler(ThrottleConfig{
		RequestsPerMinute: 60,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer m.Stop()

	router := gin.New()
	router.Use(ThrottleMiddleware(m))
	router.GET("/access", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/access", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/access", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}
