package api

import (
	"fmt"
	"sync"
	"time"
)

// DefaultMutationsPerMinute is the write rate allowed per user when none is configured.
const DefaultMutationsPerMinute = 60

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*TokenBucket
	stop    chan struct{}
	once    sync.Once
}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens per minute
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		stop:    make(chan struct{}),
	}

	// Start cleanup goroutine to remove old buckets
	go rl.cleanup()

	return rl
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens, refillRate int) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if an action is allowed for the given key
func (rl *RateLimiter) Allow(key string, maxTokens, refillRate int) bool {
	rl.mu.Lock()
	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = NewTokenBucket(maxTokens, refillRate)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.Allow()
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow checks if a token can be consumed from the bucket
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	// Refill tokens based on elapsed time
	if elapsed > 0 {
		tokensToAdd := int(elapsed.Minutes()) * tb.refillRate
		if tokensToAdd > 0 {
			tb.tokens += tokensToAdd
			if tb.tokens > tb.maxTokens {
				tb.tokens = tb.maxTokens
			}
			tb.lastRefill = now
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// cleanup removes old unused buckets
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		now := time.Now()
		for key, bucket := range rl.buckets {
			bucket.mu.Lock()
			if now.Sub(bucket.lastRefill) > 30*time.Minute {
				delete(rl.buckets, key)
			}
			bucket.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// MutationRateLimiter limits the write operations of each user: posts, likes, saves, follows
// and profile updates share one bucket.
type MutationRateLimiter struct {
	limiter   *RateLimiter
	perMinute int
}

// NewMutationRateLimiter creates a limiter allowing perMinute writes per user, in bursts of
// at most perMinute.
func NewMutationRateLimiter(perMinute int) *MutationRateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultMutationsPerMinute
	}
	return &MutationRateLimiter{
		limiter:   NewRateLimiter(),
		perMinute: perMinute,
	}
}

// CheckMutationLimit checks if a user can perform a write operation.
func (mrl *MutationRateLimiter) CheckMutationLimit(userID string) error {
	if !mrl.limiter.Allow(userID, mrl.perMinute, mrl.perMinute) {
		return fmt.Errorf("more than %d write operations per minute, please wait", mrl.perMinute)
	}
	return nil
}

// Stop releases the limiter.
func (mrl *MutationRateLimiter) Stop() {
	mrl.limiter.Stop()
}
