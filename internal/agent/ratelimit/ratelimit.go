// Package ratelimit implements a per-customer token bucket.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"support-agent/internal/common/logger"
	"support-agent/internal/common/metrics"
)

type Config struct {
	// Capacity is the bucket size, the burst a customer may send at once.
	Capacity int
	// RefillPerSecond is the sustained rate at which tokens return.
	RefillPerSecond float64
	// IdleTTL evicts buckets not touched for this long. Zero keeps them.
	IdleTTL time.Duration
	Now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// Limiter serializes token consumption per customer through each bucket's
// own lock. The map lock is only taken to find or create buckets.
type Limiter struct {
	config  Config
	logger  logger.Logger
	mu      sync.RWMutex
	buckets map[string]*bucket
}

func New(config Config, log logger.Logger) *Limiter {
	if config.Capacity <= 0 {
		config.Capacity = 10
	}
	if config.RefillPerSecond < 0 {
		config.RefillPerSecond = 0
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Limiter{
		config:  config,
		logger:  log.With(map[string]interface{}{"component": "ratelimit"}),
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token for customerID and reports whether it was
// available.
func (l *Limiter) Allow(customerID string) bool {
	now := l.config.Now()
	b := l.bucketFor(customerID, now)
	b.lastSeen.Store(now.UnixNano())
	if b.limiter.AllowN(now, 1) {
		return true
	}
	metrics.RateLimitRejections.Inc()
	l.logger.Info("rate limit exceeded", map[string]interface{}{
		"customerId": customerID,
		"capacity":   l.config.Capacity,
	})
	return false
}

func (l *Limiter) bucketFor(customerID string, now time.Time) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[customerID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// another attempt may have created it while we waited for the lock
	if b, ok = l.buckets[customerID]; ok {
		return b
	}
	b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.config.RefillPerSecond), l.config.Capacity)}
	b.lastSeen.Store(now.UnixNano())
	l.buckets[customerID] = b
	return b
}

// Cleanup drops buckets idle for longer than IdleTTL that have also
// refilled to capacity, and returns how many were removed. A bucket still
// short of tokens is kept, since a fresh one would start full.
func (l *Limiter) Cleanup() int {
	if l.config.IdleTTL <= 0 {
		return 0
	}
	now := l.config.Now()
	cutoff := now.Add(-l.config.IdleTTL).UnixNano()
	full := float64(l.config.Capacity)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, b := range l.buckets {
		if b.lastSeen.Load() < cutoff && b.limiter.TokensAt(now) >= full {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// Run evicts idle buckets every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || l.config.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				l.logger.Debug("evicted idle rate limit buckets", map[string]interface{}{"count": n})
			}
		}
	}
}

func (l *Limiter) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
