package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"brokeradmin/auth"
	"brokeradmin/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLockoutMailer struct {
	to    []string
	users []string
	err   error
}

func (f *fakeLockoutMailer) SendAccountLockoutEmail(_ context.Context, lockoutEmail, userEmail string, _ int) error {
	f.to = append(f.to, lockoutEmail)
	f.users = append(f.users, userEmail)
	return f.err
}

func newAuthFixture(t *testing.T, maxAttempts int) (*AuthService, *fakeUserStore, *fakeLockoutMailer, *auth.TokenFactory) {
	t.Helper()
	users := newFakeUserStore()
	policy := NewSecuritySettingsService(newFakeSettingsStore(), zap.NewNop().Sugar())
	settings := core.DefaultSecuritySettings()
	settings.MaxFailedLoginAttempts = maxAttempts
	settings.UserLockoutNotificationEmail = "security@example.com"
	_, err := policy.SaveSecuritySettings(context.Background(), settings)
	require.NoError(t, err)

	factory, err := auth.NewTokenFactory(auth.TokenSettings{
		SigningKey: []byte("an-hmac-signing-key-that-is-long-enough"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)

	mailer := &fakeLockoutMailer{}
	return NewAuthService(users, policy, mailer, factory, factory, zap.NewNop().Sugar()), users, mailer, factory
}

func TestAuthService_Login(t *testing.T) {
	svc, users, _, factory := newAuthFixture(t, 0)
	u := users.add("admin@example.com", "correct-horse", true)

	pair, err := svc.Login(context.Background(), "ADMIN@example.com", "correct-horse")
	require.NoError(t, err)

	claims, err := factory.ParseAccessToken(pair.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Subject)

	_, err = svc.Login(context.Background(), "nobody@example.com", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LockoutAfterMaxAttempts(t *testing.T) {
	svc, users, mailer, _ := newAuthFixture(t, 3)
	u := users.add("admin@example.com", "correct-horse", true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, "admin@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := svc.Login(ctx, "admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrAccountDisabled)
	assert.False(t, users.creds[u.ID].Enabled)
	assert.Equal(t, []string{"security@example.com"}, mailer.to)
	assert.Equal(t, []string{"admin@example.com"}, mailer.users)

	_, err = svc.Login(ctx, "admin@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAuthService_SuccessResetsFailures(t *testing.T) {
	svc, users, _, _ := newAuthFixture(t, 3)
	u := users.add("admin@example.com", "correct-horse", true)
	ctx := context.Background()

	_, err := svc.Login(ctx, "admin@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Zero(t, users.failures[u.ID])
}

func TestAuthService_LockoutMailFailureDoesNotLeak(t *testing.T) {
	svc, users, mailer, _ := newAuthFixture(t, 1)
	users.add("admin@example.com", "correct-horse", true)
	mailer.err = errors.New("smtp down")

	_, err := svc.Login(context.Background(), "admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAuthService_Refresh(t *testing.T) {
	svc, users, _, _ := newAuthFixture(t, 0)
	u := users.add("admin@example.com", "correct-horse", true)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "admin@example.com", "correct-horse")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Token)

	_, err = svc.Refresh(ctx, pair.Token)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "access tokens cannot refresh")

	users.creds[u.ID].Enabled = false
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountDisabled)

	delete(users.users, u.ID)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
