// Package security guards the inbound mDNS path: per-source query rate
// limiting and link-local source address validation, applied by the
// multicast hub before datagrams reach the querier or responder.
package security

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// rateLimitEntry tracks query rate for a single source IP within an
// eviction-bounded LRU, so a flood from many spoofed source addresses can't
// grow the tracking set without bound.
type rateLimitEntry struct {
	windowStart    time.Time
	cooldownExpiry time.Time
	queryCount     int
}

// RateLimiter manages per-source-IP rate limiting over a bounded LRU cache.
// NewRateLimiter applies no defaults; the public responder package configures
// it with a 100 qps threshold, 60s cooldown, and 10,000 max entries. The cache itself evicts the least-recently-used source once maxEntries is
// exceeded, replacing a hand-rolled sort-and-evict pass with an O(1)
// insertion-time eviction.
type RateLimiter struct {
	threshold int
	cooldown  time.Duration
	mu        sync.Mutex
	cache     *lru.Cache[string, *rateLimitEntry]
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(threshold int, cooldown time.Duration, maxEntries int) *RateLimiter {
	cache, _ := lru.New[string, *rateLimitEntry](maxEntries)
	return &RateLimiter{
		threshold: threshold,
		cooldown:  cooldown,
		cache:     cache,
	}
}

// Allow checks if a query from the given source IP should be allowed.
// Returns false if the source is in cooldown or exceeds the rate limit
// threshold within the current fixed 1-second window (the count resets once
// more than a second has passed since the window started).
func (rl *RateLimiter) Allow(sourceIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.cache.Get(sourceIP)
	if !ok {
		rl.cache.Add(sourceIP, &rateLimitEntry{queryCount: 1, windowStart: now})
		return true
	}

	if !entry.cooldownExpiry.IsZero() {
		if now.Before(entry.cooldownExpiry) {
			return false
		}
		entry.cooldownExpiry = time.Time{}
		entry.queryCount = 1
		entry.windowStart = now
		return true
	}

	if now.Sub(entry.windowStart) > time.Second {
		entry.queryCount = 1
		entry.windowStart = now
		return true
	}

	entry.queryCount++
	if entry.queryCount > rl.threshold {
		entry.cooldownExpiry = now.Add(rl.cooldown)
		return false
	}
	return true
}

// Cleanup removes entries whose cooldown has long expired and whose window
// is stale, bounding memory use between the periodic ticks that call it.
// The LRU cache already bounds entry count; this additionally reclaims
// space proactively rather than waiting for eviction pressure.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for _, ip := range rl.cache.Keys() {
		entry, ok := rl.cache.Peek(ip)
		if !ok {
			continue
		}
		if now.Sub(entry.windowStart) > time.Minute && now.After(entry.cooldownExpiry) {
			rl.cache.Remove(ip)
		}
	}
}

// Len reports how many source IPs are currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.cache.Len()
}
