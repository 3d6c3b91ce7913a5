package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"brokeradmin/core"
	"brokeradmin/metrics"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// AdminSettingsBackend is a durable settings store (SQLite or MongoDB).
type AdminSettingsBackend interface {
	FindAdminSettingsByKey(ctx context.Context, key string) (*core.AdminSettings, error)
	SaveAdminSettings(ctx context.Context, settings *core.AdminSettings) (*core.AdminSettings, error)
}

// SettingsCache holds recently read settings records.
// Implementations must not hand out values that alias their stored entries.
type SettingsCache interface {
	Get(ctx context.Context, key string) (*core.AdminSettings, bool, error)
	Set(ctx context.Context, settings *core.AdminSettings) error
	Invalidate(ctx context.Context, key string) error
}

// ============================================================================
// In-process LRU
// ============================================================================

// LRUSettingsCache is an in-process cache with per-entry expiry.
type LRUSettingsCache struct {
	lru *expirable.LRU[string, *core.AdminSettings]
}

// NewLRUSettingsCache creates a cache holding at most size entries for ttl each.
func NewLRUSettingsCache(size int, ttl time.Duration) *LRUSettingsCache {
	return &LRUSettingsCache{lru: expirable.NewLRU[string, *core.AdminSettings](size, nil, ttl)}
}

func (c *LRUSettingsCache) Get(_ context.Context, key string) (*core.AdminSettings, bool, error) {
	s, ok := c.lru.Get(key)
	if !ok {
		metrics.CacheMisses.WithLabelValues("lru").Inc()
		return nil, false, nil
	}
	metrics.CacheHits.WithLabelValues("lru").Inc()
	return s.Clone(), true, nil
}

func (c *LRUSettingsCache) Set(_ context.Context, settings *core.AdminSettings) error {
	c.lru.Add(settings.Key, settings.Clone())
	return nil
}

func (c *LRUSettingsCache) Invalidate(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// ============================================================================
// Redis
// ============================================================================

// CacheKeySettingsPrefix prefixes settings entries in Redis.
const CacheKeySettingsPrefix = "brokeradmin:settings:"

// maxCacheEntrySize caps a single encoded entry.
const maxCacheEntrySize = 1024 * 1024

// cachedSettings is the msgpack form of a settings record.
type cachedSettings struct {
	ID          string                 `msgpack:"id"`
	Key         string                 `msgpack:"key"`
	JSONValue   map[string]interface{} `msgpack:"value"`
	CreatedTime time.Time              `msgpack:"created"`
}

// RedisSettingsCache shares cached settings between control plane replicas.
type RedisSettingsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisSettingsCache wraps an existing client.
func NewRedisSettingsCache(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *RedisSettingsCache {
	return &RedisSettingsCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisSettingsCache) Get(ctx context.Context, key string) (*core.AdminSettings, bool, error) {
	data, err := c.client.Get(ctx, CacheKeySettingsPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheMisses.WithLabelValues("redis").Inc()
			return nil, false, nil
		}
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return nil, false, fmt.Errorf("failed to read cached settings %q: %w", key, err)
	}

	var entry cachedSettings
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return nil, false, fmt.Errorf("failed to decode cached settings %q: %w", key, err)
	}
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return nil, false, fmt.Errorf("corrupt cached settings id %q: %w", entry.ID, err)
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return &core.AdminSettings{
		ID:          id,
		Key:         entry.Key,
		JSONValue:   core.SettingsPayload(entry.JSONValue),
		CreatedTime: entry.CreatedTime.UTC(),
	}, true, nil
}

func (c *RedisSettingsCache) Set(ctx context.Context, settings *core.AdminSettings) error {
	data, err := msgpack.Marshal(&cachedSettings{
		ID:          settings.ID.String(),
		Key:         settings.Key,
		JSONValue:   settings.JSONValue,
		CreatedTime: settings.CreatedTime,
	})
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return fmt.Errorf("failed to encode settings %q: %w", settings.Key, err)
	}
	if len(data) > maxCacheEntrySize {
		metrics.CacheErrors.WithLabelValues("redis", "size_limit").Inc()
		return fmt.Errorf("cache value size %d bytes exceeds maximum allowed size %d bytes", len(data), maxCacheEntrySize)
	}
	if err := c.client.Set(ctx, CacheKeySettingsPrefix+settings.Key, data, c.ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("failed to cache settings %q: %w", settings.Key, err)
	}
	return nil
}

func (c *RedisSettingsCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, CacheKeySettingsPrefix+key).Err()
}

// ============================================================================
// Read-through store
// ============================================================================

// CachedAdminSettingsStorage serves reads from cache and writes through to the backend.
// Cache failures are logged and never fail the operation.
type CachedAdminSettingsStorage struct {
	backend AdminSettingsBackend
	cache   SettingsCache
	logger  *zap.SugaredLogger
}

// NewCachedAdminSettingsStorage wraps backend with cache.
func NewCachedAdminSettingsStorage(backend AdminSettingsBackend, cache SettingsCache, logger *zap.SugaredLogger) *CachedAdminSettingsStorage {
	return &CachedAdminSettingsStorage{backend: backend, cache: cache, logger: logger}
}

func (s *CachedAdminSettingsStorage) FindAdminSettingsByKey(ctx context.Context, key string) (*core.AdminSettings, error) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warnw("Settings cache read failed", "key", key, "error", err)
	}
	if ok {
		return cached, nil
	}

	settings, err := s.backend.FindAdminSettingsByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, settings); err != nil {
		s.logger.Warnw("Settings cache write failed", "key", key, "error", err)
	}
	return settings, nil
}

func (s *CachedAdminSettingsStorage) SaveAdminSettings(ctx context.Context, settings *core.AdminSettings) (*core.AdminSettings, error) {
	saved, err := s.backend.SaveAdminSettings(ctx, settings)
	if err != nil {
		// The backend may have applied the write before failing.
		if invErr := s.cache.Invalidate(ctx, settings.Key); invErr != nil {
			s.logger.Warnw("Settings cache invalidation failed", "key", settings.Key, "error", invErr)
		}
		return nil, err
	}
	if err := s.cache.Set(ctx, saved); err != nil {
		s.logger.Warnw("Settings cache write failed", "key", saved.Key, "error", err)
		if invErr := s.cache.Invalidate(ctx, saved.Key); invErr != nil {
			s.logger.Warnw("Settings cache invalidation failed", "key", saved.Key, "error", invErr)
		}
	}
	return saved, nil
}
