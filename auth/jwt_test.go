package auth

import (
	"strings"
	"testing"
	"time"

	"brokeradmin/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef-test-signing-key"

func newTestFactory(t *testing.T) *TokenFactory {
	t.Helper()
	f, err := NewTokenFactory(TokenSettings{
		SigningKey: []byte(testKey),
		Issuer:     "brokeradmin-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	return f
}

func testUser() core.SecurityUser {
	u := &core.User{ID: uuid.New(), Email: "admin@example.com", Authority: core.AuthoritySysAdmin}
	return core.SecurityUser{User: u, Enabled: true, Principal: core.NewUsernamePrincipal(u.Email)}
}

func TestTokenFactory_CreateAndParse(t *testing.T) {
	f := newTestFactory(t)
	user := testUser()

	pair, err := f.CreateTokenPair(user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Token)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.Token, pair.RefreshToken)

	claims, err := f.ParseAccessToken(pair.Token)
	require.NoError(t, err)
	assert.Equal(t, user.User.ID.String(), claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Subject)
	assert.Equal(t, "SYS_ADMIN", claims.Authority)
	assert.True(t, claims.Enabled)

	refresh, err := f.ParseRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
}

func TestTokenFactory_PairsAreFresh(t *testing.T) {
	f := newTestFactory(t)
	user := testUser()
	a, err := f.CreateTokenPair(user)
	require.NoError(t, err)
	b, err := f.CreateTokenPair(user)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestTokenFactory_RejectsWrongTokenType(t *testing.T) {
	f := newTestFactory(t)
	pair, err := f.CreateTokenPair(testUser())
	require.NoError(t, err)

	_, err = f.ParseAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.ParseRefreshToken(pair.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFactory_RejectsExpired(t *testing.T) {
	f := newTestFactory(t)
	pair, err := f.CreateTokenPair(testUser())
	require.NoError(t, err)

	f.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = f.ParseAccessToken(pair.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFactory_RejectsForeignSignatures(t *testing.T) {
	f := newTestFactory(t)
	other, err := NewTokenFactory(TokenSettings{
		SigningKey: []byte(strings.Repeat("z", 40)),
		Issuer:     "brokeradmin-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Minute,
	})
	require.NoError(t, err)
	pair, err := other.CreateTokenPair(testUser())
	require.NoError(t, err)

	_, err = f.ParseAccessToken(pair.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{TokenType: TokenTypeAccess})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = f.ParseAccessToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenFactory_Validation(t *testing.T) {
	_, err := NewTokenFactory(TokenSettings{SigningKey: []byte("short"), AccessTTL: time.Minute, RefreshTTL: time.Minute})
	assert.Error(t, err)
	_, err = NewTokenFactory(TokenSettings{SigningKey: []byte(testKey)})
	assert.Error(t, err)

	f, err := NewTokenFactory(TokenSettings{SigningKey: []byte(testKey), AccessTTL: time.Minute, RefreshTTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "brokeradmin", f.settings.Issuer)

	_, err = f.CreateTokenPair(core.SecurityUser{})
	assert.Error(t, err)
}
