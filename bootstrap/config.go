package bootstrap

import (
	"fmt"
	"os"

	"brokeradmin/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output.
func InitLogger(cfg config.LoggingConfig) (*zap.Logger, *zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Colored levels
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // Readable timestamps
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder      // Short file paths

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(
		consoleEncoder,
		zapcore.AddSync(os.Stdout),
		level,
	)

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	logger := zap.New(core, opts...)
	return logger, logger.Sugar(), nil
}

// InitConfig loads the application configuration, searching paths for config.yaml
// when given. It runs before the logger exists, so failures go to stderr.
func InitConfig(paths ...string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if len(paths) == 0 {
		cfg, err = config.LoadConfig()
	} else {
		cfg, err = config.Load(viper.New(), paths...)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// logConfig records the effective non-secret settings.
func logConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	sugar.Infow("Config loaded",
		"addr", cfg.Addr(),
		"tls", cfg.API.TLS,
		"sqlite_path", cfg.Storage.SQLitePath,
		"settings_backend", cfg.Storage.SettingsBackend,
		"cache_backend", cfg.Cache.Backend,
		"redis_enabled", cfg.Redis.Enabled,
		"secrets_provider", cfg.Secrets.Provider,
		"user_token_access_enabled", cfg.Security.UserTokenAccessEnabled)
}
