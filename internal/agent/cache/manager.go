// Package cache implements the two-tier cache manager: an in-process L1
// in front of a shared L2 store.
package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"support-agent/internal/common/codec"
	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/common/metrics"
)

type Config struct {
	L1MaxTTL          time.Duration
	SweepInterval     time.Duration
	CompressThreshold int
	L2FetchTimeout    time.Duration
	Now               func() time.Time
}

// Manager coordinates L1 and L2. An L1 entry never outlives the L2 entry it
// was copied from. A nil L2 store runs the manager L1-only.
type Manager struct {
	l1     *memoryStore
	l2     Store
	config Config
	group  singleflight.Group
	logger logger.Logger
}

func NewManager(l2 Store, config Config, log logger.Logger) *Manager {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.L1MaxTTL <= 0 {
		config.L1MaxTTL = time.Minute
	}
	if config.L2FetchTimeout <= 0 {
		config.L2FetchTimeout = 2 * time.Second
	}
	return &Manager{
		l1:     newMemoryStore(config.Now),
		l2:     l2,
		config: config,
		logger: log.With(map[string]interface{}{"component": "cache"}),
	}
}

// Run sweeps expired L1 entries until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.config.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m.l1.runSweeper(ctx, interval)
}

// Get reads a single tier. L2 errors are logged and reported as a miss.
func (m *Manager) Get(ctx context.Context, key string, tier Tier) ([]byte, bool) {
	switch tier {
	case TierL1:
		e, ok := m.l1.get(key)
		m.observe(TierL1, ok)
		return cloneBytes(e.value), ok
	case TierL2:
		e, ok := m.getL2(ctx, key)
		m.observe(TierL2, ok)
		return cloneBytes(e.Value), ok
	default:
		return nil, false
	}
}

// Lookup checks L1, then L2. An L2 hit backfills L1 with a lifetime no
// longer than the L2 entry's remaining one. Concurrent lookups of the same
// key share one L2 fetch and one backfill. The returned slice belongs to
// the caller.
func (m *Manager) Lookup(ctx context.Context, key string) ([]byte, bool) {
	if e, ok := m.l1.get(key); ok {
		m.observe(TierL1, true)
		return cloneBytes(e.value), true
	}
	m.observe(TierL1, false)
	if m.l2 == nil {
		return nil, false
	}

	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		// another caller may have backfilled while we waited
		if e, ok := m.l1.get(key); ok {
			return e.value, nil
		}
		// The fetch is shared by every waiter, so one caller's
		// cancellation must not turn it into a miss for the rest.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.L2FetchTimeout)
		defer cancel()
		e, ok := m.getL2(fetchCtx, key)
		m.observe(TierL2, ok)
		if !ok {
			return nil, nil
		}
		m.l1.set(key, e.Value, m.l1TTL(e.Remaining, 0))
		return e.Value, nil
	})
	value, _ := v.([]byte)
	return cloneBytes(value), value != nil
}

// Put writes value to tier. TierL2 also installs a clamped L1 view.
// TierL1 alone is clamped to the L2 entry's remaining lifetime when one
// exists. Concurrent writers of the same key are last-write-wins.
func (m *Manager) Put(ctx context.Context, key string, value []byte, tier Tier, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	switch tier {
	case TierL2:
		if m.l2 == nil {
			m.l1.set(key, value, m.l1TTL(ttl, 0))
			return nil
		}
		if err := m.l2.Set(ctx, key, value, ttl); err != nil {
			m.l1.del(key)
			return apperrors.NewCacheWriteFailedError(TierL2.String(), err)
		}
		m.l1.set(key, value, m.l1TTL(ttl, 0))
		return nil
	case TierL1:
		var l2Remaining time.Duration
		if m.l2 != nil {
			if e, ok := m.getL2(ctx, key); ok {
				l2Remaining = e.Remaining
			}
		}
		m.l1.set(key, value, m.l1TTL(ttl, l2Remaining))
		return nil
	default:
		return nil
	}
}

// Invalidate removes key from both tiers.
func (m *Manager) Invalidate(ctx context.Context, key string) error {
	m.l1.del(key)
	if m.l2 == nil {
		return nil
	}
	if err := m.l2.Del(ctx, key); err != nil {
		return apperrors.NewCacheWriteFailedError(TierL2.String(), err)
	}
	return nil
}

// GetValue looks key up through both tiers and decodes it into v.
func (m *Manager) GetValue(ctx context.Context, key string, v interface{}) bool {
	raw, ok := m.Lookup(ctx, key)
	if !ok {
		return false
	}
	if err := codec.Unpack(raw, v); err != nil {
		m.logger.Warn("dropping undecodable cache entry", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		_ = m.Invalidate(ctx, key)
		return false
	}
	return true
}

// PutValue encodes v and writes it through L2 and L1.
func (m *Manager) PutValue(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := codec.Pack(v, m.config.CompressThreshold)
	if err != nil {
		return apperrors.NewCacheWriteFailedError(TierL2.String(), err)
	}
	return m.Put(ctx, key, raw, TierL2, ttl)
}

// L1Remaining reports how long key has left in L1.
func (m *Manager) L1Remaining(key string) (time.Duration, bool) {
	e, ok := m.l1.get(key)
	if !ok {
		return 0, false
	}
	return e.deadline.Sub(m.config.Now()), true
}

func (m *Manager) getL2(ctx context.Context, key string) (Entry, bool) {
	if m.l2 == nil {
		return Entry{}, false
	}
	e, ok, err := m.l2.Get(ctx, key)
	if err != nil {
		m.logger.Warn("l2 read failed, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		return Entry{}, false
	}
	return e, ok
}

// l1TTL is min(L1MaxTTL, ttl, bound), ignoring a zero bound.
func (m *Manager) l1TTL(ttl, bound time.Duration) time.Duration {
	out := m.config.L1MaxTTL
	if ttl > 0 && ttl < out {
		out = ttl
	}
	if bound > 0 && bound < out {
		out = bound
	}
	return out
}

func (m *Manager) observe(tier Tier, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	metrics.CacheRequests.WithLabelValues(tier.String(), result).Inc()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
