// throttle.go provides per-client IP throttling for the public access
// endpoints. Throttling here is a blunt anti-brute-force shield in front of
// the access-code gate; it is separate from the per-key daily quota, which is
// enforced inside the key authorization path. With Redis configured the limit
// is shared across server instances via redis_rate's GCRA implementation;
// otherwise a process-local token bucket is used.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/telemetry"
)

// ThrottleConfig holds configuration for IP throttling
type ThrottleConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often the in-memory backend drops idle entries
	CleanupInterval time.Duration
}

// AccessThrottleConfig returns the limits for the room-access endpoint.
// Deliberately tight: a human entering a code needs a handful of attempts,
// an enumerator needs thousands.
func AccessThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		RequestsPerMinute: 20,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// AutomationThrottleConfig returns the limits for keyed automation endpoints.
// Per-key quotas do the real metering; this only caps abusive single IPs.
func AutomationThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		RequestsPerMinute: 600,
		BurstSize:         100,
		CleanupInterval:   5 * time.Minute,
	}
}

// Throttler decides whether a request from a client key may proceed.
type Throttler interface {
	Allow(ctx context.Context, key string) (bool, error)
	Backend() string
	Stop()
}

// NewThrottler builds a Throttler from the Redis configuration: the shared
// Redis backend when enabled, the process-local one otherwise.
func NewThrottler(cfg config.RedisConfig, tc ThrottleConfig) Throttler {
	if cfg.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return &redisThrottler{
			limiter: redis_rate.NewLimiter(client),
			client:  client,
			limit:   redis_rate.Limit{Rate: tc.RequestsPerMinute, Burst: tc.BurstSize, Period: time.Minute},
		}
	}
	return newMemoryThrottler(tc)
}

// redisThrottler shares one GCRA limit across all server instances.
type redisThrottler struct {
	limiter *redis_rate.Limiter
	client  *redis.Client
	limit   redis_rate.Limit
}

func (r *redisThrottler) Allow(ctx context.Context, key string) (bool, error) {
	res, err := r.limiter.Allow(ctx, "throttle:"+key, r.limit)
	if err != nil {
		return false, err
	}
	return res.Allowed > 0, nil
}

func (r *redisThrottler) Backend() string { return "redis" }

func (r *redisThrottler) Stop() { _ = r.client.Close() }

// memoryThrottler is a process-local token bucket keyed by client.
type memoryThrottler struct {
	cfg     ThrottleConfig
	entries map[string]*bucketEntry
	mu      sync.Mutex
	stopCh  chan struct{}
}

type bucketEntry struct {
	tokens     float64
	lastUpdate time.Time
}

func newMemoryThrottler(tc ThrottleConfig) *memoryThrottler {
	m := &memoryThrottler{
		cfg:     tc,
		entries: make(map[string]*bucketEntry),
		stopCh:  make(chan struct{}),
	}
	go m.cleanup()
	return m
}

func (m *memoryThrottler) cleanup() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, entry := range m.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

func (m *memoryThrottler) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	entry, exists := m.entries[key]
	if !exists {
		m.entries[key] = &bucketEntry{
			tokens:     float64(m.cfg.BurstSize) - 1,
			lastUpdate: now,
		}
		return true, nil
	}

	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(m.cfg.RequestsPerMinute) / 60.0
	entry.tokens = min(float64(m.cfg.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true, nil
	}
	return false, nil
}

func (m *memoryThrottler) Backend() string { return "memory" }

func (m *memoryThrottler) Stop() { close(m.stopCh) }

// ThrottleMiddleware creates a Gin middleware that throttles requests by
// client IP. A Redis error fails open: an unreachable limiter must not take
// room access down with it.
func ThrottleMiddleware(t Throttler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.Request.RemoteAddr
		}

		allowed, err := t.Allow(c.Request.Context(), ip)
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			telemetry.IPThrottleDeniedTotal.WithLabelValues(t.Backend()).Inc()
			c.Header("Retry-After", strconv.Itoa(60))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
