// Package config loads the broker admin backend configuration from config.yaml and
// BROKERADMIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings backends and cache backends accepted by the storage section.
const (
	SettingsBackendSQLite  = "sqlite"
	SettingsBackendMongoDB = "mongodb"

	CacheBackendNone  = "none"
	CacheBackendLRU   = "lru"
	CacheBackendRedis = "redis"
)

// minJWTSecretLength matches the HS512 key floor enforced by the token factory.
const minJWTSecretLength = 32

var weakSecrets = []string{
	"secret", "password", "changeme", "default", "admin",
	"jwt_secret", "supersecret", "mysecret", "test", "example",
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Port           int           `mapstructure:"port"`
	TLS            bool          `mapstructure:"tls"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	TrustProxy     bool          `mapstructure:"trust_proxy"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimit      struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
}

// AuthConfig configures JWT issuance.
type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// SecurityConfig holds the process-wide capability flags. They are read once at
// startup and never change while the process runs.
type SecurityConfig struct {
	UserTokenAccessEnabled bool `mapstructure:"user_token_access_enabled"`
}

// StorageConfig selects where settings records live. Users and session descriptors
// are always kept in SQLite.
type StorageConfig struct {
	SQLitePath      string `mapstructure:"sqlite_path"`
	SettingsBackend string `mapstructure:"settings_backend"`
}

// MongoDBConfig is used when StorageConfig.SettingsBackend is "mongodb".
type MongoDBConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
}

// CacheConfig configures the settings read cache.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RedisConfig is shared by the redis cache backend and the notification publisher.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	// MqttAuthChannel is the pub/sub channel receiving MQTT authorization updates.
	MqttAuthChannel string `mapstructure:"mqtt_auth_channel"`
}

// MailConfig tunes the circuit breaker in front of the SMTP transport.
type MailConfig struct {
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"`
}

// SecretsConfig selects where the JWT secret and bootstrap credentials come from.
type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	Vault    struct {
		Address string `mapstructure:"address"`
		Token   string `mapstructure:"token"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"vault"`
	AWS struct {
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		SecretID  string `mapstructure:"secret_id"`
	} `mapstructure:"aws"`
}

// BootstrapConfig describes the sysadmin account provisioned on an empty database.
type BootstrapConfig struct {
	SysadminEmail    string `mapstructure:"sysadmin_email"`
	SysadminPassword string `mapstructure:"sysadmin_password"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Config is the complete process configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Storage   StorageConfig   `mapstructure:"storage"`
	MongoDB   MongoDBConfig   `mapstructure:"mongodb"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Mail      MailConfig      `mapstructure:"mail"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8083)
	v.SetDefault("api.tls", false)
	v.SetDefault("api.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.trust_proxy", false)
	v.SetDefault("api.max_body_bytes", 1<<20)
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.rate_limit.requests_per_second", 20)
	v.SetDefault("api.rate_limit.burst", 40)

	// Keys without a meaningful default are still registered so AutomaticEnv can fill them.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "brokeradmin")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)

	v.SetDefault("security.user_token_access_enabled", true)

	v.SetDefault("storage.sqlite_path", "data/brokeradmin.db")
	v.SetDefault("storage.settings_backend", SettingsBackendSQLite)

	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "brokeradmin")
	v.SetDefault("mongodb.max_pool_size", 10)

	v.SetDefault("cache.backend", CacheBackendLRU)
	v.SetDefault("cache.size", 64)
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.mqtt_auth_channel", "brokeradmin:settings:mqtt-auth")

	v.SetDefault("mail.breaker_max_failures", 5)
	v.SetDefault("mail.breaker_cooldown", time.Minute)

	v.SetDefault("secrets.provider", "")
	v.SetDefault("secrets.vault.address", "http://127.0.0.1:8200")
	v.SetDefault("secrets.vault.token", "")
	v.SetDefault("secrets.vault.path", "secret/brokeradmin")
	v.SetDefault("secrets.aws.region", "us-east-1")
	v.SetDefault("secrets.aws.access_key", "")
	v.SetDefault("secrets.aws.secret_key", "")
	v.SetDefault("secrets.aws.secret_id", "brokeradmin/secrets")

	v.SetDefault("bootstrap.sysadmin_email", "sysadmin@localhost.local")
	v.SetDefault("bootstrap.sysadmin_password", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix("BROKERADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadConfig reads config.yaml from . or ./config, overlays BROKERADMIN_* variables
// and validates the result. A missing file is not an error.
func LoadConfig() (*Config, error) {
	return Load(viper.New(), ".", "./config")
}

// Load is LoadConfig with an explicit viper instance and search path.
func Load(v *viper.Viper, paths ...string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	loadFromEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Secrets.Provider != "" {
		if err := LoadSecrets(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the process cannot start with.
func (c *Config) Validate() error {
	if err := validateJWTSecret(c.Auth.JWTSecret); err != nil {
		return err
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("auth token TTLs must be positive")
	}
	if c.Auth.RefreshTokenTTL < c.Auth.AccessTokenTTL {
		return errors.New("auth.refresh_token_ttl must not be shorter than auth.access_token_ttl")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.API.TLS && (c.API.CertFile == "" || c.API.KeyFile == "") {
		return errors.New("api.cert_file and api.key_file are required when api.tls is enabled")
	}
	if c.API.MaxBodyBytes <= 0 {
		return errors.New("api.max_body_bytes must be positive")
	}
	if c.API.RateLimit.RequestsPerSecond <= 0 || c.API.RateLimit.Burst <= 0 {
		return errors.New("api.rate_limit requires positive requests_per_second and burst")
	}

	switch c.Storage.SettingsBackend {
	case SettingsBackendSQLite:
	case SettingsBackendMongoDB:
		if c.MongoDB.URI == "" || c.MongoDB.Database == "" {
			return errors.New("mongodb.uri and mongodb.database are required for the mongodb settings backend")
		}
	default:
		return fmt.Errorf("unsupported storage.settings_backend %q", c.Storage.SettingsBackend)
	}
	if c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required")
	}

	switch c.Cache.Backend {
	case CacheBackendNone:
	case CacheBackendLRU:
		if c.Cache.Size <= 0 {
			return errors.New("cache.size must be positive for the lru backend")
		}
	case CacheBackendRedis:
		if !c.Redis.Enabled {
			return errors.New("cache.backend redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unsupported cache.backend %q", c.Cache.Backend)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if c.Mail.BreakerMaxFailures == 0 || c.Mail.BreakerCooldown <= 0 {
		return errors.New("mail breaker settings must be positive")
	}

	if c.Bootstrap.SysadminPassword != "" {
		if _, err := mail.ParseAddress(c.Bootstrap.SysadminEmail); err != nil {
			return fmt.Errorf("bootstrap.sysadmin_email is invalid: %w", err)
		}
	}
	return nil
}

func validateJWTSecret(secret string) error {
	if len(secret) < minJWTSecretLength {
		return fmt.Errorf("JWT secret must be at least %d characters (256 bits)", minJWTSecretLength)
	}
	lower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Contains(lower, weak) {
			return errors.New("JWT secret appears to contain weak/default value: please use a cryptographically secure random string")
		}
	}
	return nil
}

// Addr returns the listen address of the API server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.API.Port)
}
