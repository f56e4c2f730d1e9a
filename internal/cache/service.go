package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
)

// Config holds cache configuration
type Config struct {
	DefaultTTL      time.Duration `json:"default_ttl"`
	MaxSize         int           `json:"max_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	// BackfillTTL bounds how long a distributed hit is kept in the local tier
	BackfillTTL time.Duration `json:"backfill_ttl"`
	// Namespace prefixes every key written to the distributed tier
	Namespace string `json:"namespace"`
	// Now overrides the clock used for expiry
	Now func() time.Time `json:"-"`
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL:      5 * time.Minute,
		MaxSize:         1000,
		CleanupInterval: time.Minute,
		BackfillTTL:     time.Minute,
		Namespace:       "governance",
	}
}

// CacheKey generates cache keys with consistent prefixes
type CacheKey struct {
	Prefix string
	ID     string
}

// String returns the formatted cache key
func (ck CacheKey) String() string {
	return fmt.Sprintf("%s:%s", ck.Prefix, ck.ID)
}

// Cache key prefixes
const (
	PrefixDecision = "decision"
)

// Stats is a point-in-time view of cache activity
type Stats struct {
	Hits                 int64   `json:"hits"`
	Misses               int64   `json:"misses"`
	Sets                 int64   `json:"sets"`
	Deletes              int64   `json:"deletes"`
	Evictions            int64   `json:"evictions"`
	Expirations          int64   `json:"expirations"`
	DistributedErrors    int64   `json:"distributed_errors"`
	HitRate              float64 `json:"hit_rate"`
	Size                 int     `json:"size"`
	MaxSize              int     `json:"max_size"`
	DistributedEnabled   bool    `json:"distributed_enabled"`
	DistributedAvailable bool    `json:"distributed_available"`
}

// Service is a two-tier result cache: a bounded local store plus an optional
// Redis tier that is read first and written through. Redis failures never
// fail a cache call; the service falls back to the local tier.
type Service struct {
	config  *Config
	local   *localStore
	redis   RedisStore
	metrics *metrics.Metrics
	logger  *logging.Logger

	hits, misses, sets, deletes atomic.Int64
	evictions, expirations      atomic.Int64
	distributedErrors           atomic.Int64
	distributedAvailable        atomic.Bool

	sweepMu sync.Mutex
}

// NewService creates a new cache service; redis and m may be nil
func NewService(config *Config, redis RedisStore, m *metrics.Metrics) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = defaults.DefaultTTL
	}
	if config.MaxSize <= 0 {
		config.MaxSize = defaults.MaxSize
	}
	if config.BackfillTTL <= 0 {
		config.BackfillTTL = defaults.BackfillTTL
	}
	if config.BackfillTTL > config.DefaultTTL {
		config.BackfillTTL = config.DefaultTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &Service{
		config:  config,
		local:   newLocalStore(config.MaxSize),
		redis:   redis,
		metrics: m,
		logger:  logging.GetLogger(),
	}
	s.distributedAvailable.Store(redis != nil)
	return s
}

// Config returns the cache configuration
func (s *Service) Config() *Config {
	return s.config
}

// Set stores a value in cache with the specified TTL; zero means the default TTL
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := serialize(value)
	if err != nil {
		s.metrics.RecordCacheOperation("set", "error")
		return errors.NewCacheError("serialize", err)
	}

	s.store(ctx, key, data, ttl)
	s.metrics.RecordCacheOperation("set", "ok")
	return nil
}

func (s *Service) store(ctx context.Context, key, data string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, s.distributedKey(key), data, ttl); err != nil {
			s.distributedFailure("set", key, err)
		} else {
			s.distributedAvailable.Store(true)
		}
	}

	now := s.config.Now()
	evicted := s.local.set(&Entry{
		Key:       key,
		Value:     data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	s.sets.Add(1)
	if evicted > 0 {
		s.evictions.Add(int64(evicted))
	}
}

// Get retrieves a value from cache into dest. A miss or an expired entry
// returns a NOT_FOUND error.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := s.lookup(ctx, key)
	if !ok {
		s.misses.Add(1)
		s.metrics.RecordCacheOperation("get", "miss")
		return errors.NewNotFoundError("cache key")
	}

	if err := deserialize(data, dest); err != nil {
		s.metrics.RecordCacheOperation("get", "error")
		return errors.NewCacheError("deserialize", err)
	}

	s.hits.Add(1)
	s.metrics.RecordCacheOperation("get", "hit")
	return nil
}

func (s *Service) lookup(ctx context.Context, key string) (string, bool) {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, s.distributedKey(key))
		switch {
		case err == nil:
			s.distributedAvailable.Store(true)
			s.backfill(key, data)
			return data, true
		case errors.IsNotFound(err):
			s.distributedAvailable.Store(true)
		default:
			s.distributedFailure("get", key, err)
		}
	}

	entry, expired := s.local.get(key, s.config.Now())
	if expired {
		s.expirations.Add(1)
	}
	if entry == nil {
		return "", false
	}
	return entry.Value, true
}

// backfill copies a distributed hit into the local tier for BackfillTTL
func (s *Service) backfill(key, data string) {
	now := s.config.Now()
	evicted := s.local.set(&Entry{
		Key:       key,
		Value:     data,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.BackfillTTL),
	})
	if evicted > 0 {
		s.evictions.Add(int64(evicted))
	}
}

// Delete removes a value from both tiers
func (s *Service) Delete(ctx context.Context, key string) error {
	if s.redis != nil {
		if _, err := s.redis.Del(ctx, s.distributedKey(key)); err != nil {
			s.distributedFailure("delete", key, err)
		}
	}
	if s.local.delete(key) {
		s.deletes.Add(1)
	}
	s.metrics.RecordCacheOperation("delete", "ok")
	return nil
}

// Exists checks if a live value is stored for key
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	if s.redis != nil {
		count, err := s.redis.Exists(ctx, s.distributedKey(key))
		if err == nil && count > 0 {
			return true, nil
		}
		if err != nil {
			s.distributedFailure("exists", key, err)
		}
	}

	entry, expired := s.local.get(key, s.config.Now())
	if expired {
		s.expirations.Add(1)
	}
	return entry != nil, nil
}

// InvalidatePattern removes every key matching pattern from both tiers,
// where "*" matches any substring. It returns the number of local entries removed.
func (s *Service) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return 0, errors.NewValidationError("invalid cache pattern").WithCause(err)
	}

	if s.redis != nil {
		keys, err := s.redis.Keys(ctx, redisGlob(s.distributedKey(pattern)))
		if err != nil {
			s.distributedFailure("invalidate", pattern, err)
		} else if len(keys) > 0 {
			if _, err := s.redis.Del(ctx, keys...); err != nil {
				s.distributedFailure("invalidate", pattern, err)
			}
		}
	}

	removed := s.local.deleteMatching(re.MatchString)
	s.deletes.Add(int64(removed))
	s.metrics.RecordCacheOperation("invalidate", "ok")

	s.logger.Info("Cache entries invalidated", "pattern", pattern, "removed", removed)
	return removed, nil
}

// MGet returns the raw JSON of every live key; misses are omitted
func (s *Service) MGet(ctx context.Context, keys []string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		data, ok := s.lookup(ctx, key)
		if !ok {
			s.misses.Add(1)
			s.metrics.RecordCacheOperation("get", "miss")
			continue
		}
		s.hits.Add(1)
		s.metrics.RecordCacheOperation("get", "hit")
		out[key] = json.RawMessage(data)
	}
	return out
}

// MSet stores every entry with the same TTL
func (s *Service) MSet(ctx context.Context, entries map[string]interface{}, ttl time.Duration) error {
	for key, value := range entries {
		if err := s.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Warm loads entries from loader into the cache and returns how many were stored
func (s *Service) Warm(ctx context.Context, loader func(ctx context.Context) (map[string]interface{}, error), ttl time.Duration) (int, error) {
	entries, err := loader(ctx)
	if err != nil {
		return 0, errors.NewCacheError("warm", err)
	}
	if err := s.MSet(ctx, entries, ttl); err != nil {
		return 0, err
	}

	s.logger.Info("Cache warmed", "entries", len(entries))
	return len(entries), nil
}

// Clear removes every entry from both tiers
func (s *Service) Clear(ctx context.Context) error {
	if s.redis != nil {
		keys, err := s.redis.Keys(ctx, s.distributedKey("*"))
		if err != nil {
			s.distributedFailure("clear", "*", err)
		} else if len(keys) > 0 {
			if _, err := s.redis.Del(ctx, keys...); err != nil {
				s.distributedFailure("clear", "*", err)
			}
		}
	}

	removed := s.local.clear()
	s.deletes.Add(int64(removed))
	s.metrics.RecordCacheOperation("clear", "ok")
	s.updateGauges()

	s.logger.Info("Cache cleared", "removed", removed)
	return nil
}

// Sweep purges expired local entries and returns how many were removed
func (s *Service) Sweep() int {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	removed := s.local.sweep(s.config.Now())
	if removed > 0 {
		s.expirations.Add(int64(removed))
		s.logger.Debug("Expired cache entries swept", "removed", removed)
	}
	s.updateGauges()
	return removed
}

// Stats returns cache counters and sizes
func (s *Service) Stats() Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()

	stats := Stats{
		Hits:                 hits,
		Misses:               misses,
		Sets:                 s.sets.Load(),
		Deletes:              s.deletes.Load(),
		Evictions:            s.evictions.Load(),
		Expirations:          s.expirations.Load(),
		DistributedErrors:    s.distributedErrors.Load(),
		Size:                 s.local.len(),
		MaxSize:              s.config.MaxSize,
		DistributedEnabled:   s.redis != nil,
		DistributedAvailable: s.redis != nil && s.distributedAvailable.Load(),
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Health checks the distributed tier; a cache without one is always healthy
func (s *Service) Health(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	err := s.redis.Health(ctx)
	s.distributedAvailable.Store(err == nil)
	return err
}

// Close releases the distributed tier
func (s *Service) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

func (s *Service) updateGauges() {
	stats := s.Stats()
	s.metrics.UpdateCacheStats("local", stats.HitRate, stats.Size)
}

func (s *Service) distributedKey(key string) string {
	if s.config.Namespace == "" {
		return key
	}
	return s.config.Namespace + ":" + key
}

func (s *Service) distributedFailure(operation, key string, err error) {
	s.distributedErrors.Add(1)
	if s.distributedAvailable.Swap(false) {
		s.logger.Warn("Distributed cache unavailable, using local tier only",
			"operation", operation,
			"key", key,
			"error", err.Error(),
		)
	}
	s.metrics.RecordCacheOperation(operation, "distributed_error")
}

// globToRegexp turns a pattern where "*" matches any substring into an anchored regexp
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

// redisGlob escapes every Redis glob metacharacter except "*", so the
// distributed tier matches the same keys as the local one
func redisGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// serialize converts a value to a JSON string
func serialize(value interface{}) (string, error) {
	if str, ok := value.(string); ok {
		return str, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// deserialize converts a JSON string to a value
func deserialize(data string, dest interface{}) error {
	if str, ok := dest.(*string); ok {
		*str = data
		return nil
	}

	return json.Unmarshal([]byte(data), dest)
}
