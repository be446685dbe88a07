package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-agent/internal/common/logger"
	"support-agent/internal/common/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, capacity int, refill float64, clock *fakeClock) *Limiter {
	return New(Config{Capacity: capacity, RefillPerSecond: refill, IdleTTL: time.Minute, Now: clock.Now}, logger.NewTestLogger(t))
}

func TestAllow_RejectsRequestBeyondCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, 5, 0.1, clock)
	before := testutil.ToFloat64(metrics.RateLimitRejections)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("C-1"), "request %d", i+1)
	}
	assert.False(t, l.Allow("C-1"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitRejections))
}

func TestAllow_Refills(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, 2, 1, clock)

	assert.True(t, l.Allow("C-1"))
	assert.True(t, l.Allow("C-1"))
	assert.False(t, l.Allow("C-1"))

	clock.Advance(time.Second)
	assert.True(t, l.Allow("C-1"))
	assert.False(t, l.Allow("C-1"))
}

func TestAllow_CustomersAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, 1, 0.01, clock)

	assert.True(t, l.Allow("C-1"))
	assert.False(t, l.Allow("C-1"))
	assert.True(t, l.Allow("C-2"))
}

func TestAllow_ConcurrentCallersShareOneBucket(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, 10, 0.001, clock)

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("C-1") {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, allowed)
	assert.Equal(t, 1, l.size())
}

func TestCleanup_EvictsIdleBuckets(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, 3, 1, clock)

	for i := 0; i < 4; i++ {
		l.Allow(fmt.Sprintf("C-%d", i))
	}
	clock.Advance(30 * time.Second)
	l.Allow("C-0")
	clock.Advance(45 * time.Second)

	assert.Equal(t, 3, l.Cleanup())
	assert.Equal(t, 1, l.size())
}

func TestCleanup_KeepsBucketsWithoutRefill(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, 2, 0, clock)

	assert.True(t, l.Allow("C-1"))
	assert.True(t, l.Allow("C-1"))
	assert.False(t, l.Allow("C-1"))

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, l.Cleanup())
	assert.False(t, l.Allow("C-1"), "an exhausted bucket stays exhausted after cleanup")
}

func TestCleanup_KeepsPartiallyRefilledBuckets(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := newLimiter(t, 100, 1, clock)

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("C-1"))
	}
	clock.Advance(61 * time.Second)

	assert.Equal(t, 0, l.Cleanup())
	assert.Equal(t, 1, l.size())

	clock.Advance(40 * time.Second)
	assert.Equal(t, 1, l.Cleanup())
}
