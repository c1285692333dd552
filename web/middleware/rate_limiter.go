package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	MessagesPerMinute int           // Max messages per client per minute
	BurstSize         int           // Allow burst of N requests
	CleanupInterval   time.Duration // How often to clean up old entries
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill tokens based on elapsed time
	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// ClientRateLimiter manages message rate limits per client
type ClientRateLimiter struct {
	config      RateLimiterConfig
	limits      map[string]*TokenBucket
	mu          sync.RWMutex
	logger      *zap.Logger
	stopCleanup chan struct{}
}

// NewClientRateLimiter creates a new per-client rate limiter
func NewClientRateLimiter(config RateLimiterConfig, logger *zap.Logger) *ClientRateLimiter {
	limiter := &ClientRateLimiter{
		config:      config,
		limits:      make(map[string]*TokenBucket),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go limiter.cleanupRoutine()

	return limiter
}

// cleanupRoutine periodically removes stale entries
func (crl *ClientRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(crl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			crl.cleanup()
		case <-crl.stopCleanup:
			return
		}
	}
}

// cleanup drops all buckets once the map grows large. Idle clients refill to
// full anyway, so losing a bucket never over-restricts anyone.
func (crl *ClientRateLimiter) cleanup() {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	if len(crl.limits) > 1000 {
		crl.logger.Info("Cleaning up rate limiter cache", zap.Int("limiters", len(crl.limits)))
		crl.limits = make(map[string]*TokenBucket)
	}
}

// Stop stops the cleanup routine
func (crl *ClientRateLimiter) Stop() {
	close(crl.stopCleanup)
}

// AllowMessage checks if a message can be sent by the given client
func (crl *ClientRateLimiter) AllowMessage(clientKey string) bool {
	crl.mu.Lock()
	bucket, exists := crl.limits[clientKey]
	if !exists {
		refillRate := float64(crl.config.MessagesPerMinute) / 60.0
		bucket = NewTokenBucket(float64(crl.config.BurstSize), refillRate)
		crl.limits[clientKey] = bucket
	}
	crl.mu.Unlock()

	return bucket.Allow()
}

// GetMessageLimit returns remaining message tokens for a client
func (crl *ClientRateLimiter) GetMessageLimit(clientKey string) (remaining int, limit int) {
	crl.mu.RLock()
	bucket, exists := crl.limits[clientKey]
	crl.mu.RUnlock()

	if !exists {
		return crl.config.BurstSize, crl.config.BurstSize
	}
	return bucket.Remaining(), crl.config.BurstSize
}

// clientKey identifies the caller: the session header when present,
// otherwise the client IP so anonymous callers still share a bucket per host.
func clientKey(c *gin.Context) string {
	if id := c.GetHeader("X-Session-ID"); id != "" {
		return "session:" + id
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware creates a Gin middleware for message rate limiting
func RateLimitMiddleware(limiter *ClientRateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		allowed := limiter.AllowMessage(key)
		remaining, limit := limiter.GetMessageLimit(key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			logger.Warn("Rate limit exceeded",
				zap.String("client", key),
				zap.Int("limit", limit))

			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
