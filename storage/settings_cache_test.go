package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"brokeradmin/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingBackend records backend calls.
type countingBackend struct {
	data    map[string]*core.AdminSettings
	finds   int
	saves   int
	saveErr error
}

func newCountingBackend() *countingBackend {
	return &countingBackend{data: map[string]*core.AdminSettings{}}
}

func (b *countingBackend) FindAdminSettingsByKey(_ context.Context, key string) (*core.AdminSettings, error) {
	b.finds++
	s, ok := b.data[key]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	return s.Clone(), nil
}

func (b *countingBackend) SaveAdminSettings(_ context.Context, s *core.AdminSettings) (*core.AdminSettings, error) {
	b.saves++
	if b.saveErr != nil {
		return nil, b.saveErr
	}
	saved := s.Clone()
	if saved.ID == uuid.Nil {
		saved.ID = uuid.New()
	}
	b.data[s.Key] = saved
	return saved.Clone(), nil
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisSettingsCache_RoundTrip(t *testing.T) {
	cache := NewRedisSettingsCache(newTestRedis(t), time.Minute, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "mail")
	require.NoError(t, err)
	assert.False(t, ok)

	in := &core.AdminSettings{
		ID:  uuid.New(),
		Key: "mail",
		JSONValue: core.SettingsPayload{
			"smtpHost":  "smtp.local",
			"smtpPort":  float64(587),
			"enableTls": true,
			"nested":    map[string]interface{}{"k": "v"},
		},
		CreatedTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cache.Set(ctx, in))

	out, ok, err := cache.Get(ctx, "mail")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.JSONValue, out.JSONValue)
	assert.True(t, in.CreatedTime.Equal(out.CreatedTime))

	require.NoError(t, cache.Invalidate(ctx, "mail"))
	_, ok, err = cache.Get(ctx, "mail")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSettingsCache_CorruptEntry(t *testing.T) {
	client := newTestRedis(t)
	cache := NewRedisSettingsCache(client, time.Minute, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()
	require.NoError(t, client.Set(ctx, CacheKeySettingsPrefix+"mail", "not msgpack", 0).Err())

	_, ok, err := cache.Get(ctx, "mail")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLRUSettingsCache_ReturnsCopies(t *testing.T) {
	cache := NewLRUSettingsCache(8, time.Minute)
	ctx := context.Background()

	in := &core.AdminSettings{Key: "general", JSONValue: core.SettingsPayload{"a": "1"}}
	require.NoError(t, cache.Set(ctx, in))
	in.JSONValue["a"] = "mutated"

	out, ok, err := cache.Get(ctx, "general")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", out.JSONValue.String("a"))

	out.JSONValue["a"] = "mutated again"
	again, _, _ := cache.Get(ctx, "general")
	assert.Equal(t, "1", again.JSONValue.String("a"))
}

func TestCachedAdminSettingsStorage_ReadThrough(t *testing.T) {
	backend := newCountingBackend()
	store := NewCachedAdminSettingsStorage(backend, NewLRUSettingsCache(8, time.Minute), zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	_, err := store.SaveAdminSettings(ctx, &core.AdminSettings{Key: "mail", JSONValue: core.SettingsPayload{"password": "x"}})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := store.FindAdminSettingsByKey(ctx, "mail")
		require.NoError(t, err)
		assert.Equal(t, "x", got.JSONValue.String("password"))
	}
	assert.Equal(t, 0, backend.finds, "write-through populates the cache")

	_, err = store.FindAdminSettingsByKey(ctx, "missing")
	assert.ErrorIs(t, err, ErrSettingsNotFound)
	assert.Equal(t, 1, backend.finds)
}

func TestCachedAdminSettingsStorage_FailedSaveInvalidates(t *testing.T) {
	backend := newCountingBackend()
	cache := NewRedisSettingsCache(newTestRedis(t), time.Minute, zaptest.NewLogger(t).Sugar())
	store := NewCachedAdminSettingsStorage(backend, cache, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	_, err := store.SaveAdminSettings(ctx, &core.AdminSettings{Key: "general", JSONValue: core.SettingsPayload{"v": "old"}})
	require.NoError(t, err)

	backend.saveErr = errors.New("disk full")
	_, err = store.SaveAdminSettings(ctx, &core.AdminSettings{Key: "general", JSONValue: core.SettingsPayload{"v": "new"}})
	require.Error(t, err)

	_, ok, err := cache.Get(ctx, "general")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.FindAdminSettingsByKey(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, "old", got.JSONValue.String("v"))
}
