package service

import (
	"context"
	"errors"
	"fmt"

	"brokeradmin/core"
	"brokeradmin/metrics"
	"brokeradmin/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const permissionDeniedMessage = "You don't have permission to perform this operation!"

// CredentialsStore loads the stored credentials of a user.
type CredentialsStore interface {
	GetUserCredentials(ctx context.Context, userID uuid.UUID) (*core.UserCredentials, error)
}

// TokenFactory produces a signed token pair for a principal.
type TokenFactory interface {
	CreateTokenPair(user core.SecurityUser) (core.TokenPair, error)
}

// TokenService issues token pairs on behalf of other users. The capability flag is
// copied at construction and never changes.
type TokenService struct {
	userTokenAccessEnabled bool
	users                  UserReader
	credentials            CredentialsStore
	factory                TokenFactory
	logger                 *zap.SugaredLogger
}

// NewTokenService creates the service.
func NewTokenService(userTokenAccessEnabled bool, users UserReader, credentials CredentialsStore, factory TokenFactory, logger *zap.SugaredLogger) *TokenService {
	return &TokenService{
		userTokenAccessEnabled: userTokenAccessEnabled,
		users:                  users,
		credentials:            credentials,
		factory:                factory,
		logger:                 logger,
	}
}

// UserTokenAccessEnabled reports the capability flag.
func (s *TokenService) UserTokenAccessEnabled() bool {
	return s.userTokenAccessEnabled
}

// IssueToken returns a fresh token pair for userID. When the capability is disabled it
// fails before any store is read.
func (s *TokenService) IssueToken(ctx context.Context, userID uuid.UUID) (core.TokenPair, error) {
	if !s.userTokenAccessEnabled {
		return core.TokenPair{}, core.NewPermissionDeniedError(permissionDeniedMessage)
	}
	user, err := loadUser(ctx, s.users, userID)
	if err != nil {
		return core.TokenPair{}, err
	}
	securityUser, err := securityUserOf(ctx, s.credentials, user)
	if err != nil {
		return core.TokenPair{}, err
	}

	pair, err := s.factory.CreateTokenPair(securityUser)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to issue token for user %s: %w", userID, err)
	}
	metrics.TokensIssued.Inc()
	s.logger.Infow("Issued user token", "user_id", userID, "enabled", securityUser.Enabled)
	return pair, nil
}

// securityUserOf rebuilds the principal of user from its stored credentials.
func securityUserOf(ctx context.Context, credentials CredentialsStore, user *core.User) (core.SecurityUser, error) {
	creds, err := credentials.GetUserCredentials(ctx, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialsNotFound) {
			return core.SecurityUser{}, core.NewNotFoundError("User credentials not found for user [%s]", user.ID)
		}
		return core.SecurityUser{}, fmt.Errorf("failed to load credentials of user %s: %w", user.ID, err)
	}
	return core.SecurityUser{
		User:      user,
		Enabled:   creds.Enabled,
		Principal: core.NewUsernamePrincipal(user.Email),
	}, nil
}
