package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"brokeradmin/auth"
	"brokeradmin/core"
	"brokeradmin/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountDisabled is returned when the credentials are disabled or were just locked.
	ErrAccountDisabled = errors.New("user account is disabled")
)

// LoginStore defines the persistence needed to authenticate a user.
type LoginStore interface {
	UserReader
	CredentialsStore
	GetUserByEmail(ctx context.Context, email string) (*core.User, error)
	RecordLoginFailure(ctx context.Context, userID uuid.UUID, maxAttempts int) (int, bool, error)
	ResetLoginFailures(ctx context.Context, userID uuid.UUID) error
}

// SecurityPolicySource returns the current authentication policy.
type SecurityPolicySource interface {
	GetSecuritySettings(ctx context.Context) (core.SecuritySettings, error)
}

// LockoutMailer notifies an operator that an account was locked.
type LockoutMailer interface {
	SendAccountLockoutEmail(ctx context.Context, lockoutEmail, userEmail string, attempts int) error
}

// RefreshTokenParser verifies refresh tokens.
type RefreshTokenParser interface {
	ParseRefreshToken(token string) (*auth.Claims, error)
}

// AuthService authenticates administrators and issues their own token pairs.
type AuthService struct {
	store   LoginStore
	policy  SecurityPolicySource
	mailer  LockoutMailer
	factory TokenFactory
	parser  RefreshTokenParser
	logger  *zap.SugaredLogger
}

// NewAuthService creates the service. mailer may be nil.
func NewAuthService(store LoginStore, policy SecurityPolicySource, mailer LockoutMailer, factory TokenFactory, parser RefreshTokenParser, logger *zap.SugaredLogger) *AuthService {
	return &AuthService{store: store, policy: policy, mailer: mailer, factory: factory, parser: parser, logger: logger}
}

// Login checks email and password and returns a token pair. Failed attempts are counted;
// reaching the policy's limit disables the credentials and mails the lockout address.
func (s *AuthService) Login(ctx context.Context, email, password string) (core.TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return core.TokenPair{}, ErrInvalidCredentials
		}
		return core.TokenPair{}, fmt.Errorf("failed to load user: %w", err)
	}
	creds, err := s.store.GetUserCredentials(ctx, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialsNotFound) {
			return core.TokenPair{}, ErrInvalidCredentials
		}
		return core.TokenPair{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !creds.Enabled {
		return core.TokenPair{}, ErrAccountDisabled
	}
	if bcrypt.CompareHashAndPassword([]byte(creds.Password), []byte(password)) != nil {
		return core.TokenPair{}, s.loginFailed(ctx, user)
	}

	if creds.FailedLoginAttempts > 0 {
		if err := s.store.ResetLoginFailures(ctx, user.ID); err != nil {
			s.logger.Warnw("Failed to reset login failures", "user_id", user.ID, "error", err)
		}
	}
	pair, err := s.factory.CreateTokenPair(core.SecurityUser{
		User:      user,
		Enabled:   creds.Enabled,
		Principal: core.NewUsernamePrincipal(user.Email),
	})
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to issue token: %w", err)
	}
	s.logger.Infow("User logged in", "user_id", user.ID)
	return pair, nil
}

func (s *AuthService) loginFailed(ctx context.Context, user *core.User) error {
	policy, err := s.policy.GetSecuritySettings(ctx)
	if err != nil {
		s.logger.Errorw("Failed to load security settings", "error", err)
		policy = core.DefaultSecuritySettings()
	}
	attempts, locked, err := s.store.RecordLoginFailure(ctx, user.ID, policy.MaxFailedLoginAttempts)
	if err != nil {
		s.logger.Errorw("Failed to record login failure", "user_id", user.ID, "error", err)
		return ErrInvalidCredentials
	}
	s.logger.Infow("Login failed", "user_id", user.ID, "failed_attempts", attempts)
	if !locked {
		return ErrInvalidCredentials
	}

	s.logger.Warnw("User account locked", "user_id", user.ID, "failed_attempts", attempts)
	if s.mailer != nil && policy.UserLockoutNotificationEmail != "" {
		if err := s.mailer.SendAccountLockoutEmail(ctx, policy.UserLockoutNotificationEmail, user.Email, attempts); err != nil {
			s.logger.Errorw("Failed to send lockout notification", "user_id", user.ID, "error", err)
		}
	}
	return ErrAccountDisabled
}

// Refresh exchanges a valid refresh token for a new pair. The account is re-read so a
// deleted or disabled user cannot refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	claims, err := s.parser.ParseRefreshToken(refreshToken)
	if err != nil {
		return core.TokenPair{}, ErrInvalidCredentials
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return core.TokenPair{}, ErrInvalidCredentials
	}
	user, err := loadUser(ctx, s.store, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.TokenPair{}, ErrInvalidCredentials
		}
		return core.TokenPair{}, err
	}
	securityUser, err := securityUserOf(ctx, s.store, user)
	if err != nil {
		return core.TokenPair{}, err
	}
	if !securityUser.Enabled {
		return core.TokenPair{}, ErrAccountDisabled
	}
	return s.factory.CreateTokenPair(securityUser)
}
