package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongSecret = "k9f2Lq8ZrT4vWx7YbN3mPc6HdJ5sGa1E"

// newTestConfig returns a valid Config for testing
func newTestConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("BROKERADMIN_AUTH_JWT_SECRET", strongSecret)
	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)
	return cfg
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg := newTestConfig(t)

	assert.True(t, cfg.Security.UserTokenAccessEnabled, "token access is enabled unless configured otherwise")
	assert.Equal(t, 8083, cfg.API.Port)
	assert.Equal(t, ":8083", cfg.Addr())
	assert.Equal(t, SettingsBackendSQLite, cfg.Storage.SettingsBackend)
	assert.Equal(t, CacheBackendLRU, cfg.Cache.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, int64(1<<20), cfg.API.MaxBodyBytes)
	assert.Equal(t, strongSecret, cfg.Auth.JWTSecret)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := writeConfigFile(t, `
api:
  port: 9090
auth:
  jwt_secret: "`+strongSecret+`"
  access_token_ttl: 5m
security:
  user_token_access_enabled: false
cache:
  backend: none
`)

	cfg, err := Load(viper.New(), dir)
	require.NoError(t, err)
	assert.False(t, cfg.Security.UserTokenAccessEnabled)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, CacheBackendNone, cfg.Cache.Backend)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := writeConfigFile(t, "security:\n  user_token_access_enabled: true\n")
	t.Setenv("BROKERADMIN_AUTH_JWT_SECRET", strongSecret)
	t.Setenv("BROKERADMIN_SECURITY_USER_TOKEN_ACCESS_ENABLED", "false")

	cfg, err := Load(viper.New(), dir)
	require.NoError(t, err)
	assert.False(t, cfg.Security.UserTokenAccessEnabled)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := writeConfigFile(t, "api: [unclosed\n")
	t.Setenv("BROKERADMIN_AUTH_JWT_SECRET", strongSecret)

	_, err := Load(viper.New(), dir)
	assert.Error(t, err)
}

func TestLoad_RejectsMissingSecret(t *testing.T) {
	_, err := Load(viper.New(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "too-short" }},
		{"weak secret", func(c *Config) { c.Auth.JWTSecret = "changeme-changeme-changeme-changeme" }},
		{"zero access ttl", func(c *Config) { c.Auth.AccessTokenTTL = 0 }},
		{"refresh shorter than access", func(c *Config) { c.Auth.RefreshTokenTTL = time.Minute }},
		{"port out of range", func(c *Config) { c.API.Port = 70000 }},
		{"tls without cert", func(c *Config) { c.API.TLS = true }},
		{"no body limit", func(c *Config) { c.API.MaxBodyBytes = 0 }},
		{"no rate limit", func(c *Config) { c.API.RateLimit.Burst = 0 }},
		{"unknown settings backend", func(c *Config) { c.Storage.SettingsBackend = "cassandra" }},
		{"mongodb without uri", func(c *Config) {
			c.Storage.SettingsBackend = SettingsBackendMongoDB
			c.MongoDB.URI = ""
		}},
		{"no sqlite path", func(c *Config) { c.Storage.SQLitePath = "" }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis cache without redis", func(c *Config) { c.Cache.Backend = CacheBackendRedis }},
		{"lru without size", func(c *Config) { c.Cache.Size = 0 }},
		{"redis without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}},
		{"breaker disabled", func(c *Config) { c.Mail.BreakerMaxFailures = 0 }},
		{"bad sysadmin email", func(c *Config) {
			c.Bootstrap.SysadminEmail = "not an email"
			c.Bootstrap.SysadminPassword = "sysadmin"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AcceptsMongoAndRedis(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Storage.SettingsBackend = SettingsBackendMongoDB
	cfg.Redis.Enabled = true
	cfg.Cache.Backend = CacheBackendRedis
	assert.NoError(t, cfg.Validate())
}
