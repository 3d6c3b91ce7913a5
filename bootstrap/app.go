package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"brokeradmin/api"
	"brokeradmin/auth"
	"brokeradmin/config"
	"brokeradmin/core"
	"brokeradmin/notify"
	"brokeradmin/service"
	"brokeradmin/session"

	"go.uber.org/zap"
)

// App represents the broker admin backend with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	// Storage
	Storage *StorageComponents

	// Runtime collaborators
	Hub      *session.Hub
	Mail     *notify.SMTPMailService
	Notifier *notify.SystemSettingsNotifier
	Tokens   *auth.TokenFactory

	// Services
	Admins      *service.AdminService
	Settings    *service.AdminSettingsService
	MailProbe   *service.MailProbe
	Security    *service.SecuritySettingsService
	TokenIssuer *service.TokenService
	Auth        *service.AuthService
	APIServer   *api.API

	// Lifecycle
	serviceWg    *sync.WaitGroup
	started      bool
	shutdownOnce sync.Once
}

// NewApp loads the configuration, builds the logger and initializes all components.
// configPaths overrides the config.yaml search path.
func NewApp(ctx context.Context, configPaths ...string) (*App, error) {
	cfg, err := InitConfig(configPaths...)
	if err != nil {
		return nil, err
	}

	logger, sugar, err := InitLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sugar.Info("Broker admin backend starting...")
	logConfig(cfg, sugar)

	return NewAppWithConfig(ctx, cfg, logger)
}

// NewAppWithConfig initializes every component from an already loaded configuration.
// Nothing is served until Start is called.
func NewAppWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sugar := logger.Sugar()
	app := &App{
		Config:    cfg,
		Logger:    logger,
		Sugar:     sugar,
		serviceWg: &sync.WaitGroup{},
	}

	storageComponents, err := InitStorage(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Storage = storageComponents

	if err := app.initServices(ctx); err != nil {
		storageComponents.Close(ctx)
		return nil, err
	}

	result, err := app.runFirstRunSetup(ctx)
	if err != nil {
		sugar.Errorf("First-run setup encountered errors: %v", err)
	} else if result.IsFirstRun {
		sugar.Infow("First-run setup completed",
			"admin_created", result.AdminCreated,
			"admin_email", result.AdminEmail)
	}

	return app, nil
}

func (a *App) initServices(ctx context.Context) error {
	cfg := a.Config
	sugar := a.Sugar
	settingsStore := a.Storage.Settings

	a.Hub = session.NewHub(ctx, sugar)

	// The hub joins the publishers in Start; an App that never serves has no sockets to notify.
	var publishers []notify.Publisher
	if a.Storage.Redis != nil {
		publishers = append(publishers, notify.NewRedisPublisher(a.Storage.Redis, cfg.Redis.MqttAuthChannel))
	}
	a.Notifier = notify.NewSystemSettingsNotifier(sugar, publishers...)

	breaker, err := core.NewCircuitBreaker(core.CircuitBreakerConfig{
		MaxFailures: cfg.Mail.BreakerMaxFailures,
		Cooldown:    cfg.Mail.BreakerCooldown,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize mail circuit breaker: %w", err)
	}
	a.Mail = notify.NewSMTPMailService(settingsStore, breaker, sugar)

	a.Tokens, err = auth.NewTokenFactory(auth.TokenSettings{
		SigningKey: []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token factory: %w", err)
	}

	a.Settings, err = service.NewAdminSettingsService(settingsStore, a.Mail, a.Notifier, sugar)
	if err != nil {
		return fmt.Errorf("failed to initialize settings service: %w", err)
	}
	a.MailProbe = service.NewMailProbe(settingsStore, a.Mail, sugar)
	a.Security = service.NewSecuritySettingsService(settingsStore, sugar)

	users := a.Storage.Users
	a.Admins = service.NewAdminService(users, a.Storage.Connections, a.Hub, a.Security, sugar)
	a.TokenIssuer = service.NewTokenService(cfg.Security.UserTokenAccessEnabled, users, users, a.Tokens, sugar)
	a.Auth = service.NewAuthService(users, a.Security, a.Mail, a.Tokens, a.Tokens, sugar)

	a.APIServer = api.NewAPI(api.Services{
		Admins:      a.Admins,
		Settings:    a.Settings,
		MailProbe:   a.MailProbe,
		Security:    a.Security,
		Tokens:      a.TokenIssuer,
		Auth:        a.Auth,
		TokenParser: a.Tokens,
		Sessions:    a.Hub,
		Connections: a.Storage.Connections,
	}, cfg, sugar)

	sugar.Infow("Services initialized", "user_token_access_enabled", a.TokenIssuer.UserTokenAccessEnabled())
	return nil
}

// Start starts the session hub, loads the mail transport and serves the API.
func (a *App) Start(ctx context.Context) error {
	a.started = true
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		a.Hub.Start()
	}()
	a.Notifier.AddPublisher(a.Hub)

	if err := a.Mail.UpdateMailConfiguration(ctx); err != nil {
		a.Sugar.Warnf("Mail transport not configured: %v", err)
	}

	return a.startAPIServer()
}

func (a *App) startAPIServer() error {
	addr := a.Config.Addr()
	errCh := make(chan error, 1)

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		var err error
		if a.Config.API.TLS {
			a.Sugar.Infow("Starting API server with TLS", "addr", addr)
			err = a.APIServer.StartTLS(addr, a.Config.API.CertFile, a.Config.API.KeyFile)
		} else {
			a.Sugar.Infow("Starting API server", "addr", addr)
			err = a.APIServer.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Bind failures surface immediately.
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start API server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components. Calling it more than once is a no-op.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.Sugar.Info("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		a.Sugar.Info("Phase 1: Stopping API server...")
		if a.APIServer != nil {
			if err := a.APIServer.Stop(ctx); err != nil {
				a.Sugar.Errorf("API server shutdown error: %v", err)
			}
		}

		a.Sugar.Info("Phase 2: Closing sessions...")
		if a.Hub != nil && a.started {
			a.Hub.Stop()
		}
		a.serviceWg.Wait()

		a.Sugar.Info("Phase 3: Closing storage...")
		if a.Storage != nil {
			a.Storage.Close(ctx)
		}

		a.Sugar.Info("Shutdown complete")
		_ = a.Logger.Sync()
	})
}

// Close releases the resources of an App that was never started.
func (a *App) Close() {
	a.shutdownOnce.Do(func() {
		if a.APIServer != nil {
			_ = a.APIServer.Stop(context.Background())
		}
		if a.Storage != nil {
			a.Storage.Close(context.Background())
		}
	})
}

// FirstRunResult contains information about first-run initialization.
type FirstRunResult struct {
	IsFirstRun    bool
	AdminCreated  bool
	AdminEmail    string
	AdminPassword string
}

// runFirstRunSetup provisions the sysadmin account when the user table is empty. A
// password is generated and printed once if none is configured.
func (a *App) runFirstRunSetup(ctx context.Context) (*FirstRunResult, error) {
	result := &FirstRunResult{}

	count, err := a.Storage.Users.CountUsers(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return result, nil
	}
	result.IsFirstRun = true

	a.Sugar.Info("========================================")
	a.Sugar.Info("FIRST RUN DETECTED - Running initial setup")
	a.Sugar.Info("========================================")

	email := strings.ToLower(strings.TrimSpace(a.Config.Bootstrap.SysadminEmail))
	password := a.Config.Bootstrap.SysadminPassword
	generated := password == ""
	if generated {
		password, err = GenerateSecurePassword(24)
		if err != nil {
			return result, fmt.Errorf("failed to generate sysadmin password: %w", err)
		}
	}

	_, err = a.Storage.Users.CreateUser(ctx, &core.User{
		Email:     email,
		FirstName: "System",
		LastName:  "Administrator",
		Authority: core.AuthoritySysAdmin,
	}, password)
	if err != nil {
		return result, fmt.Errorf("failed to create sysadmin account: %w", err)
	}

	result.AdminCreated = true
	result.AdminEmail = email
	if !generated {
		return result, nil
	}
	result.AdminPassword = password

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "========================================\n")
	fmt.Fprintf(os.Stderr, "     DEFAULT SYSADMIN CREDENTIALS\n")
	fmt.Fprintf(os.Stderr, "========================================\n")
	fmt.Fprintf(os.Stderr, "  Email:    %s\n", email)
	fmt.Fprintf(os.Stderr, "  Password: %s\n", password)
	fmt.Fprintf(os.Stderr, "========================================\n")
	fmt.Fprintf(os.Stderr, "  IMPORTANT: This password will NOT be\n")
	fmt.Fprintf(os.Stderr, "  shown again! Store it securely now.\n")
	fmt.Fprintf(os.Stderr, "========================================\n\n")

	return result, nil
}
