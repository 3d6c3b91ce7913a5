package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"brokeradmin/config"
	"brokeradmin/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StorageComponents holds the initialized persistence layer.
type StorageComponents struct {
	SQLite      *storage.SQLite
	Users       *storage.SQLiteUserStorage
	Connections *storage.SQLiteWebSocketConnectionStorage
	// Settings is the settings backend, wrapped in the read cache when one is configured.
	Settings storage.AdminSettingsBackend
	MongoDB  *storage.MongoDB
	Redis    *redis.Client
}

// InitStorage opens SQLite, the optional Redis client and the settings backend.
func InitStorage(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*StorageComponents, error) {
	sqlite, err := InitSQLite(cfg, sugar)
	if err != nil {
		return nil, err
	}

	components := &StorageComponents{
		SQLite:      sqlite,
		Users:       storage.NewSQLiteUserStorage(sqlite, sugar),
		Connections: storage.NewSQLiteWebSocketConnectionStorage(sqlite, sugar),
	}

	if cfg.Redis.Enabled {
		client, err := InitRedis(ctx, cfg, sugar)
		if err != nil {
			components.Close(ctx)
			return nil, err
		}
		components.Redis = client
	}

	if err := components.initSettings(ctx, cfg, sugar); err != nil {
		components.Close(ctx)
		return nil, err
	}
	return components, nil
}

// InitSQLite opens the SQLite database that stores users, settings and session descriptors.
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sqlite, err := storage.NewSQLite(cfg.Storage.SQLitePath, sugar)
	if err != nil {
		errMsg := ClassifySQLiteError(err, cfg.Storage.SQLitePath)
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: SQLite Initialization Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", errMsg)
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Info("SQLite initialized successfully")
	return sqlite, nil
}

// InitRedis connects to Redis and verifies the connection with a ping.
func InitRedis(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		sugar.Error(ClassifyConnectionError(err, "Redis", cfg.Redis.Addr))
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sugar.Infow("Redis connected", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return client, nil
}

func (c *StorageComponents) initSettings(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) error {
	var backend storage.AdminSettingsBackend
	switch cfg.Storage.SettingsBackend {
	case config.SettingsBackendMongoDB:
		mongoDB, err := storage.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.MaxPoolSize, sugar)
		if err != nil {
			sugar.Error(ClassifyConnectionError(err, "MongoDB", cfg.MongoDB.URI))
			return fmt.Errorf("failed to initialize MongoDB: %w", err)
		}
		c.MongoDB = mongoDB
		if err := mongoDB.EnsureIndexes(ctx); err != nil {
			return err
		}
		backend = storage.NewMongoAdminSettingsStorage(mongoDB, sugar)
	default:
		backend = storage.NewSQLiteAdminSettingsStorage(c.SQLite, sugar)
	}

	var cache storage.SettingsCache
	switch cfg.Cache.Backend {
	case config.CacheBackendLRU:
		cache = storage.NewLRUSettingsCache(cfg.Cache.Size, cfg.Cache.TTL)
	case config.CacheBackendRedis:
		if c.Redis == nil {
			return errors.New("redis cache backend requires redis.enabled")
		}
		cache = storage.NewRedisSettingsCache(c.Redis, cfg.Cache.TTL, sugar)
	}

	if cache == nil {
		c.Settings = backend
	} else {
		c.Settings = storage.NewCachedAdminSettingsStorage(backend, cache, sugar)
	}
	sugar.Infow("Settings storage initialized",
		"backend", cfg.Storage.SettingsBackend,
		"cache", cfg.Cache.Backend)
	return nil
}

// Close releases every open connection. It is safe on a partially initialized value.
func (c *StorageComponents) Close(ctx context.Context) {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.MongoDB != nil {
		_ = c.MongoDB.Close(ctx)
	}
	if c.SQLite != nil {
		_ = c.SQLite.Close()
	}
}
