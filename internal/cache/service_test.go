package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRedis is an in-memory RedisStore that can be switched to failing
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	failing bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

var errConnRefused = stderrors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (f *fakeRedis) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", errConnRefused
	}
	v, ok := f.data[key]
	if !ok {
		return "", errors.NewNotFoundError("key")
	}
	return v, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errConnRefused
	}
	f.data[key] = value
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errConnRefused
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errConnRefused
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeRedis) Keys(ctx context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errConnRefused
	}
	var keys []string
	for k := range f.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeRedis) Health(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errConnRefused
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func setupTestCache(t *testing.T, redis RedisStore) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	return NewService(cfg, redis, nil), clock
}

type cachedDecision struct {
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

func TestCacheService_SetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t, nil)
	ctx := context.Background()

	key := CacheKey{Prefix: "test", ID: "123"}.String()
	value := cachedDecision{Status: "approved", Confidence: 0.9}

	require.NoError(t, cache.Set(ctx, key, value, time.Minute))

	var result cachedDecision
	require.NoError(t, cache.Get(ctx, key, &result))
	assert.Equal(t, value, result)

	err := cache.Get(ctx, "test:missing", &result)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
}

// Scenario: an entry with a 100ms TTL is served at 50ms and absent at 150ms.
func TestCacheService_ExpiresAfterTTL(t *testing.T) {
	cache, clock := setupTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "decision:acme:abc", "v", 100*time.Millisecond))

	clock.Advance(50 * time.Millisecond)
	var got string
	require.NoError(t, cache.Get(ctx, "decision:acme:abc", &got))
	assert.Equal(t, "v", got)

	clock.Advance(100 * time.Millisecond)
	err := cache.Get(ctx, "decision:acme:abc", &got)
	assert.True(t, errors.IsNotFound(err))

	// the expired entry was evicted on read
	stats := cache.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, int64(1), stats.Expirations)
}

func TestCacheService_DefaultTTL(t *testing.T) {
	cache, clock := setupTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", 0))

	clock.Advance(5*time.Minute - time.Second)
	exists, err := cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	clock.Advance(time.Second)
	exists, err = cache.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCacheService_Delete(t *testing.T) {
	cache, _ := setupTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "test:delete", "test value", time.Minute))

	exists, err := cache.Exists(ctx, "test:delete")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, "test:delete"))

	exists, err = cache.Exists(ctx, "test:delete")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCacheService_EvictsOldestWhenFull(t *testing.T) {
	clock := &testClock{now: time.Now()}
	cache := NewService(&Config{DefaultTTL: time.Minute, MaxSize: 3, Now: clock.Now}, nil, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("k%d", i), i, 0))
	}
	// overwriting keeps insertion position
	require.NoError(t, cache.Set(ctx, "k1", 10, 0))
	require.NoError(t, cache.Set(ctx, "k4", 4, 0))

	var v int
	assert.True(t, errors.IsNotFound(cache.Get(ctx, "k1", &v)))
	for _, key := range []string{"k2", "k3", "k4"} {
		assert.NoError(t, cache.Get(ctx, key, &v), key)
	}

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestCacheService_InvalidatePattern(t *testing.T) {
	redis := newFakeRedis()
	cache, _ := setupTestCache(t, redis)
	ctx := context.Background()

	keys := []string{
		CacheKey{Prefix: "decision", ID: "acme:1"}.String(),
		CacheKey{Prefix: "decision", ID: "acme:2"}.String(),
		CacheKey{Prefix: "decision", ID: "globex:3"}.String(),
	}
	for _, key := range keys {
		require.NoError(t, cache.Set(ctx, key, "test value", time.Minute))
	}

	removed, err := cache.InvalidatePattern(ctx, TenantPattern("acme"))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, key := range keys[:2] {
		exists, err := cache.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, key)
	}
	exists, err := cache.Exists(ctx, keys[2])
	require.NoError(t, err)
	assert.True(t, exists)

	// both tiers were purged
	assert.Len(t, redis.data, 1)
	assert.Contains(t, redis.data, "governance:"+keys[2])
}

func TestCacheService_InvalidatePatternMatchesSubstring(t *testing.T) {
	cache, _ := setupTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "decision:acme:policy.v1", "a", 0))
	require.NoError(t, cache.Set(ctx, "decision:acme:policyXv1", "b", 0))

	// regexp metacharacters in the pattern are literal
	removed, err := cache.InvalidatePattern(ctx, "*policy.v1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	exists, _ := cache.Exists(ctx, "decision:acme:policyXv1")
	assert.True(t, exists)
}

func TestCacheService_ReadsDistributedTierFirst(t *testing.T) {
	redis := newFakeRedis()
	cache, _ := setupTestCache(t, redis)
	ctx := context.Background()

	redis.data["governance:decision:acme:x"] = `{"status":"rejected","confidence":0.7}`

	var got cachedDecision
	require.NoError(t, cache.Get(ctx, "decision:acme:x", &got))
	assert.Equal(t, "rejected", got.Status)
	assert.True(t, cache.Stats().DistributedAvailable)
}

func TestCacheService_BackfillsLocalTierFromDistributedHit(t *testing.T) {
	redis := newFakeRedis()
	cache, clock := setupTestCache(t, redis)
	ctx := context.Background()

	redis.data["governance:decision:acme:x"] = `{"status":"conditional_approval","confidence":0.6}`

	var got cachedDecision
	require.NoError(t, cache.Get(ctx, "decision:acme:x", &got))
	assert.Equal(t, 1, cache.Stats().Size)

	// the local copy serves reads while the distributed tier is down
	redis.setFailing(true)
	got = cachedDecision{}
	require.NoError(t, cache.Get(ctx, "decision:acme:x", &got))
	assert.Equal(t, "conditional_approval", got.Status)

	// and lives only for the backfill TTL
	clock.Advance(cache.Config().BackfillTTL + time.Second)
	err := cache.Get(ctx, "decision:acme:x", &got)
	assert.True(t, errors.IsNotFound(err))
}

func TestCacheService_InvalidatePatternEscapesDistributedGlob(t *testing.T) {
	redis := newFakeRedis()
	cache, _ := setupTestCache(t, redis)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "decision:acme?:1", "a", time.Minute))
	require.NoError(t, cache.Set(ctx, "decision:acmeZ:1", "b", time.Minute))
	require.NoError(t, cache.Set(ctx, "decision:[acme]:1", "c", time.Minute))

	removed, err := cache.InvalidatePattern(ctx, "decision:acme?*")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = cache.InvalidatePattern(ctx, "decision:[acme]*")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// "?" and "[...]" are literal in both tiers
	assert.Len(t, redis.data, 1)
	assert.Contains(t, redis.data, "governance:decision:acmeZ:1")
}

func TestRedisGlob(t *testing.T) {
	assert.Equal(t, `governance:decision:acme\?*`, redisGlob("governance:decision:acme?*"))
	assert.Equal(t, `a\[b\]\\c*`, redisGlob(`a[b]\c*`))
}

func TestCacheService_FailsOpenWhenDistributedTierDown(t *testing.T) {
	redis := newFakeRedis()
	cache, _ := setupTestCache(t, redis)
	ctx := context.Background()

	redis.setFailing(true)

	require.NoError(t, cache.Set(ctx, "decision:acme:y", cachedDecision{Status: "approved"}, time.Minute))

	var got cachedDecision
	require.NoError(t, cache.Get(ctx, "decision:acme:y", &got))
	assert.Equal(t, "approved", got.Status)

	exists, err := cache.Exists(ctx, "decision:acme:y")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = cache.InvalidatePattern(ctx, "decision:*")
	require.NoError(t, err)
	require.NoError(t, cache.Clear(ctx))

	stats := cache.Stats()
	assert.True(t, stats.DistributedEnabled)
	assert.False(t, stats.DistributedAvailable)
	assert.Positive(t, stats.DistributedErrors)
	assert.Error(t, cache.Health(ctx))

	// recovery is picked up on the next successful call
	redis.setFailing(false)
	require.NoError(t, cache.Set(ctx, "decision:acme:z", "v", time.Minute))
	assert.True(t, cache.Stats().DistributedAvailable)
}

func TestCacheService_Sweep(t *testing.T) {
	cache, clock := setupTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", "v", time.Second))
	require.NoError(t, cache.Set(ctx, "long", "v", time.Hour))

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Stats().Size)
	assert.Equal(t, 0, cache.Sweep())
}

func TestCacheService_BulkOperations(t *testing.T) {
	cache, _ := setupTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, cache.MSet(ctx, map[string]interface{}{
		"a": cachedDecision{Status: "approved"},
		"b": cachedDecision{Status: "rejected"},
	}, time.Minute))

	got := cache.MGet(ctx, []string{"a", "b", "c"})
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"status":"rejected","confidence":0}`, string(got["b"]))

	n, err := cache.Warm(ctx, func(ctx context.Context) (map[string]interface{}, error) {
		return map[string]interface{}{"c": 1, "d": 2}, nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, cache.Stats().Size)

	_, err = cache.Warm(ctx, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, stderrors.New("source unavailable")
	}, time.Minute)
	assert.Error(t, err)

	require.NoError(t, cache.Clear(ctx))
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestFingerprint(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	base := &types.Request{
		Message: "Launch the Pfizer campaign",
		Context: types.RequestContext{
			TenantID:        "acme",
			Tool:            "Midjourney",
			Clients:         []string{"pfizer", "novartis"},
			DataSensitivity: []string{"pii", "medical"},
			Deadline:        &deadline,
		},
	}
	equivalent := &types.Request{
		ID:      "different-id",
		Message: "  launch the   pfizer CAMPAIGN ",
		Context: types.RequestContext{
			TenantID:        "acme",
			Tool:            "midjourney",
			Clients:         []string{"Novartis", "Pfizer"},
			DataSensitivity: []string{"medical", "pii"},
			Deadline:        &deadline,
		},
	}

	key := Fingerprint(base)
	assert.Equal(t, PrefixDecision, key.Prefix)
	assert.Equal(t, key, Fingerprint(equivalent))
	assert.Regexp(t, `^decision:acme:[0-9a-f]{64}$`, key.String())

	other := *base
	other.Context.Industry = "banking"
	assert.NotEqual(t, key, Fingerprint(&other))

	anonymous := &types.Request{Message: "hello"}
	assert.Contains(t, Fingerprint(anonymous).String(), "decision:default:")
}

func BenchmarkCacheService_Set(b *testing.B) {
	cache := NewService(DefaultConfig(), nil, nil)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Set(ctx, fmt.Sprintf("bench:%d", i), "benchmark value", time.Minute)
	}
}

func BenchmarkCacheService_Get(b *testing.B) {
	cache := NewService(DefaultConfig(), nil, nil)
	ctx := context.Background()

	cache.Set(ctx, "bench:get", "benchmark value", time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var result string
		cache.Get(ctx, "bench:get", &result)
	}
}
