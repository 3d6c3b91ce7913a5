package service

import (
	"context"
	"errors"
	"testing"

	"brokeradmin/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSecuritySettingsService_DefaultsAndSave(t *testing.T) {
	store := newFakeSettingsStore()
	svc := NewSecuritySettingsService(store, zap.NewNop().Sugar())
	ctx := context.Background()

	got, err := svc.GetSecuritySettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultSecuritySettings(), got)

	want := core.SecuritySettings{
		PasswordPolicy:               core.UserPasswordPolicy{MinimumLength: 10, MinimumUppercaseLetters: 1},
		MaxFailedLoginAttempts:       5,
		UserLockoutNotificationEmail: "security@example.com",
	}
	saved, err := svc.SaveSecuritySettings(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, want, saved)

	got, err = svc.GetSecuritySettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Contains(t, store.records, core.SecuritySettingsKey)
}

func TestSecuritySettingsService_RejectsInvalidPolicy(t *testing.T) {
	store := newFakeSettingsStore()
	svc := NewSecuritySettingsService(store, zap.NewNop().Sugar())

	for _, s := range []core.SecuritySettings{
		{PasswordPolicy: core.UserPasswordPolicy{MinimumLength: 2}},
		{PasswordPolicy: core.UserPasswordPolicy{MinimumLength: 8, MaximumLength: 7}},
		{PasswordPolicy: core.UserPasswordPolicy{MinimumLength: 8}, MaxFailedLoginAttempts: -1},
		{PasswordPolicy: core.UserPasswordPolicy{MinimumLength: 8}, UserLockoutNotificationEmail: "nope"},
	} {
		_, err := svc.SaveSecuritySettings(context.Background(), s)
		assert.Equal(t, core.InvalidArguments, core.ErrorCodeOf(err), "settings %+v", s)
	}
	assert.Empty(t, store.saves)
}

func TestSecuritySettingsService_StoreFailure(t *testing.T) {
	store := newFakeSettingsStore()
	store.findErr = errors.New("io error")
	svc := NewSecuritySettingsService(store, zap.NewNop().Sugar())

	_, err := svc.GetSecuritySettings(context.Background())
	assert.ErrorIs(t, err, store.findErr)
}

func TestCheckPasswordPolicy(t *testing.T) {
	policy := core.UserPasswordPolicy{
		MinimumLength:            8,
		MaximumLength:            16,
		MinimumUppercaseLetters:  1,
		MinimumLowercaseLetters:  1,
		MinimumDigits:            1,
		MinimumSpecialCharacters: 1,
	}
	cases := map[string]bool{
		"Passw0rd!":             true,
		"Pw0!":                  false,
		"Passw0rd!Passw0rd!xyz": false,
		"passw0rd!":             false,
		"PASSW0RD!":             false,
		"Password!":             false,
		"Passw0rdX":             false,
		"Pass w0rd!":            false,
	}
	for password, ok := range cases {
		err := checkPasswordPolicy(policy, password)
		if ok {
			assert.NoError(t, err, password)
		} else {
			assert.Error(t, err, password)
		}
	}

	policy.AllowWhitespaces = true
	assert.NoError(t, checkPasswordPolicy(policy, "Pass w0rd!"))
}
