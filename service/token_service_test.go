package service

import (
	"context"
	"errors"
	"testing"

	"brokeradmin/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokenService_DisabledCapabilityTouchesNothing(t *testing.T) {
	users := newFakeUserStore()
	u := users.add("a@example.com", "password", true)
	factory := &fakeTokenFactory{}
	svc := NewTokenService(false, users, users, factory, zap.NewNop().Sugar())

	for _, id := range []uuid.UUID{u.ID, uuid.New(), uuid.Nil} {
		_, err := svc.IssueToken(context.Background(), id)
		require.Error(t, err)
		assert.Equal(t, core.PermissionDenied, core.ErrorCodeOf(err))
		assert.Equal(t, "You don't have permission to perform this operation!", err.Error())
	}
	assert.Zero(t, users.reads)
	assert.Zero(t, users.credReads)
	assert.Empty(t, factory.issued)
	assert.False(t, svc.UserTokenAccessEnabled())
}

func TestTokenService_IssueToken(t *testing.T) {
	users := newFakeUserStore()
	enabled := users.add("enabled@example.com", "password", true)
	disabled := users.add("disabled@example.com", "password", false)
	factory := &fakeTokenFactory{}
	svc := NewTokenService(true, users, users, factory, zap.NewNop().Sugar())
	ctx := context.Background()

	pair, err := svc.IssueToken(ctx, enabled.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-"+enabled.ID.String(), pair.Token)
	assert.Equal(t, "refresh-"+enabled.ID.String(), pair.RefreshToken)

	_, err = svc.IssueToken(ctx, disabled.ID)
	require.NoError(t, err)

	require.Len(t, factory.issued, 2)
	assert.True(t, factory.issued[0].Enabled)
	assert.Equal(t, core.NewUsernamePrincipal("enabled@example.com"), factory.issued[0].Principal)
	assert.False(t, factory.issued[1].Enabled, "principal carries the stored enablement state")
	assert.True(t, svc.UserTokenAccessEnabled())
}

func TestTokenService_Errors(t *testing.T) {
	users := newFakeUserStore()
	factory := &fakeTokenFactory{}
	svc := NewTokenService(true, users, users, factory, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := svc.IssueToken(ctx, uuid.New())
	assert.True(t, core.IsNotFound(err))

	orphan := users.add("orphan@example.com", "password", true)
	delete(users.creds, orphan.ID)
	_, err = svc.IssueToken(ctx, orphan.ID)
	assert.True(t, core.IsNotFound(err))

	u := users.add("a@example.com", "password", true)
	factory.err = errors.New("signing failed")
	_, err = svc.IssueToken(ctx, u.ID)
	assert.ErrorIs(t, err, factory.err)
}
