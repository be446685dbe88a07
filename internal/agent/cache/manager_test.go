package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/logger"
	"support-agent/internal/models"
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

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestManager(t *testing.T, l2 Store, clock *fakeClock) *Manager {
	t.Helper()
	return NewManager(l2, Config{
		L1MaxTTL:          time.Minute,
		CompressThreshold: 256,
		Now:               clock.Now,
	}, logger.NewTestLogger(t))
}

func TestManager_PutValueGetValueRoundTrip(t *testing.T) {
	_, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)
	ctx := context.Background()

	chunks := []models.Chunk{
		{ChunkID: "kb-1#0", Text: "Reset your password from the login page.", Score: 0.82, SourceDocumentID: "kb-1"},
		{ChunkID: "kb-2#3", Text: "Passwords expire every 90 days.", Score: 0.41, SourceDocumentID: "kb-2"},
	}
	key := Key("retrieval", Fingerprint("reset password", "gold"))
	require.NoError(t, m.PutValue(ctx, key, chunks, time.Hour))

	var got []models.Chunk
	require.True(t, m.GetValue(ctx, key, &got))
	assert.Equal(t, chunks, got)

	// served from L2 once L1 is gone
	m.l1.del(key)
	got = nil
	require.True(t, m.GetValue(ctx, key, &got))
	assert.Equal(t, chunks, got)
}

func TestManager_BackfillNeverOutlivesL2(t *testing.T) {
	tests := []struct {
		name    string
		l2TTL   time.Duration
		wantMax time.Duration
	}{
		{"short l2 entry bounds l1", 20 * time.Second, 20 * time.Second},
		{"long l2 entry capped by l1 max", 5 * time.Minute, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := setupRedis(t)
			clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
			m := newTestManager(t, NewRedisStore(client, "support:"), clock)

			require.NoError(t, mr.Set("support:k", "v"))
			mr.SetTTL("support:k", tt.l2TTL)

			value, ok := m.Lookup(context.Background(), "k")
			require.True(t, ok)
			assert.Equal(t, []byte("v"), value)

			remaining, ok := m.L1Remaining("k")
			require.True(t, ok)
			assert.LessOrEqual(t, remaining, tt.l2TTL)
			assert.LessOrEqual(t, remaining, tt.wantMax)
			assert.Greater(t, remaining, time.Duration(0))
		})
	}
}

func TestManager_PutL1ClampedToL2Remaining(t *testing.T) {
	mr, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)

	require.NoError(t, mr.Set("support:k", "old"))
	mr.SetTTL("support:k", 10*time.Second)

	require.NoError(t, m.Put(context.Background(), "k", []byte("new"), TierL1, time.Hour))
	remaining, ok := m.L1Remaining("k")
	require.True(t, ok)
	assert.LessOrEqual(t, remaining, 10*time.Second)

	// without an L2 entry the view is capped by L1MaxTTL
	require.NoError(t, m.Put(context.Background(), "other", []byte("x"), TierL1, time.Hour))
	remaining, _ = m.L1Remaining("other")
	assert.Equal(t, time.Minute, remaining)
}

func TestManager_L1ExpiresByDeadlineNotAccess(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, nil, clock)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), TierL1, 30*time.Second))
	for i := 0; i < 5; i++ {
		clock.Advance(5 * time.Second)
		_, ok := m.Get(ctx, "k", TierL1)
		require.True(t, ok)
	}
	clock.Advance(6 * time.Second)
	_, ok := m.Get(ctx, "k", TierL1)
	assert.False(t, ok)

	assert.Equal(t, 1, m.l1.sweep())
	assert.Zero(t, m.l1.len())
}

func TestManager_L2ErrorIsMiss(t *testing.T) {
	mr, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)

	mr.SetError("READONLY replica")
	_, ok := m.Lookup(context.Background(), "k")
	assert.False(t, ok)
	_, ok = m.Get(context.Background(), "k", TierL2)
	assert.False(t, ok)
}

func TestManager_L2WriteFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(db, "support:"), clock)

	mock.ExpectSet("support:k", []byte("v"), time.Hour).SetErr(errors.New("OOM command not allowed"))

	err := m.Put(context.Background(), "k", []byte("v"), TierL2, time.Hour)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCacheWriteFailed, apperrors.CodeOf(err))

	_, ok := m.Get(context.Background(), "k", TierL1)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Invalidate(t *testing.T) {
	mr, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), TierL2, time.Hour))
	assert.True(t, mr.Exists("support:k"))

	require.NoError(t, m.Invalidate(ctx, "k"))
	assert.False(t, mr.Exists("support:k"))
	_, ok := m.Lookup(ctx, "k")
	assert.False(t, ok)
}

func TestManager_ConcurrentLookupsShareBackfill(t *testing.T) {
	mr, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)

	require.NoError(t, mr.Set("support:k", "v"))
	mr.SetTTL("support:k", time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, ok := m.Lookup(context.Background(), "k")
			assert.True(t, ok)
			assert.Equal(t, []byte("v"), value)
		}()
	}
	wg.Wait()

	_, ok := m.Get(context.Background(), "k", TierL1)
	assert.True(t, ok)
}

func TestManager_LookupReturnsPrivateCopy(t *testing.T) {
	_, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", []byte("value"), TierL2, time.Hour))

	first, ok := m.Lookup(ctx, "k")
	require.True(t, ok)
	first[0] = 'X'

	second, ok := m.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), second)

	l1, ok := m.Get(ctx, "k", TierL1)
	require.True(t, ok)
	l1[1] = 'Y'
	again, _ := m.Get(ctx, "k", TierL1)
	assert.Equal(t, []byte("value"), again)
}

func TestManager_LookupSurvivesCancelledCaller(t *testing.T) {
	mr, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)

	require.NoError(t, mr.Set("support:k", "v"))
	mr.SetTTL("support:k", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	value, ok := m.Lookup(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	_, ok = m.Get(context.Background(), "k", TierL1)
	assert.True(t, ok, "the shared fetch still backfills L1")
}

func TestManager_UndecodableEntryDropped(t *testing.T) {
	mr, client := setupRedis(t)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, NewRedisStore(client, "support:"), clock)

	require.NoError(t, mr.Set("support:k", "\x07garbage"))
	var out []models.Chunk
	assert.False(t, m.GetValue(context.Background(), "k", &out))
	assert.False(t, mr.Exists("support:k"))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Reset password!", "gold")
	b := Fingerprint("reset   PASSWORD", "gold")
	c := Fingerprint("reset password", "standard")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
	assert.Equal(t, "retrieval:"+a, Key("retrieval", a))
}
