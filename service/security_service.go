package service

import (
	"context"
	"fmt"
	"unicode"

	"brokeradmin/core"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SecuritySettingsService stores the authentication policy under its reserved key.
type SecuritySettingsService struct {
	store    AdminSettingsStore
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewSecuritySettingsService creates the service.
func NewSecuritySettingsService(store AdminSettingsStore, logger *zap.SugaredLogger) *SecuritySettingsService {
	return &SecuritySettingsService{store: store, validate: validator.New(), logger: logger}
}

// GetSecuritySettings returns the stored policy, or the defaults if none was saved.
func (s *SecuritySettingsService) GetSecuritySettings(ctx context.Context) (core.SecuritySettings, error) {
	stored, err := s.store.FindAdminSettingsByKey(ctx, core.SecuritySettingsKey)
	if err != nil {
		if isSettingsNotFound(err) {
			return core.DefaultSecuritySettings(), nil
		}
		return core.SecuritySettings{}, fmt.Errorf("failed to load security settings: %w", err)
	}
	var settings core.SecuritySettings
	if err := stored.JSONValue.Decode(&settings); err != nil {
		return core.SecuritySettings{}, fmt.Errorf("failed to decode security settings: %w", err)
	}
	return settings, nil
}

// SaveSecuritySettings validates and replaces the policy.
func (s *SecuritySettingsService) SaveSecuritySettings(ctx context.Context, settings core.SecuritySettings) (core.SecuritySettings, error) {
	if err := s.validate.Struct(settings); err != nil {
		return core.SecuritySettings{}, validationError(err)
	}
	payload, err := core.PayloadFrom(settings)
	if err != nil {
		return core.SecuritySettings{}, fmt.Errorf("failed to encode security settings: %w", err)
	}
	saved, err := s.store.SaveAdminSettings(ctx, &core.AdminSettings{Key: core.SecuritySettingsKey, JSONValue: payload})
	if err != nil {
		return core.SecuritySettings{}, fmt.Errorf("failed to save security settings: %w", err)
	}

	var out core.SecuritySettings
	if err := saved.JSONValue.Decode(&out); err != nil {
		return core.SecuritySettings{}, fmt.Errorf("failed to decode security settings: %w", err)
	}
	s.logger.Infow("Security settings saved",
		"min_length", out.PasswordPolicy.MinimumLength,
		"max_failed_login_attempts", out.MaxFailedLoginAttempts)
	return out, nil
}

// ValidatePassword checks password against the stored password policy.
func (s *SecuritySettingsService) ValidatePassword(ctx context.Context, password string) error {
	settings, err := s.GetSecuritySettings(ctx)
	if err != nil {
		return err
	}
	return checkPasswordPolicy(settings.PasswordPolicy, password)
}

func checkPasswordPolicy(policy core.UserPasswordPolicy, password string) error {
	var length, upper, lower, digits, special, spaces int
	for _, r := range password {
		length++
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r):
			spaces++
		default:
			special++
		}
	}

	switch {
	case length < policy.MinimumLength:
		return core.NewInvalidParameterError("Password must be at least %d characters long", policy.MinimumLength)
	case policy.MaximumLength > 0 && length > policy.MaximumLength:
		return core.NewInvalidParameterError("Password must be at most %d characters long", policy.MaximumLength)
	case upper < policy.MinimumUppercaseLetters:
		return core.NewInvalidParameterError("Password must contain at least %d uppercase letters", policy.MinimumUppercaseLetters)
	case lower < policy.MinimumLowercaseLetters:
		return core.NewInvalidParameterError("Password must contain at least %d lowercase letters", policy.MinimumLowercaseLetters)
	case digits < policy.MinimumDigits:
		return core.NewInvalidParameterError("Password must contain at least %d digits", policy.MinimumDigits)
	case special < policy.MinimumSpecialCharacters:
		return core.NewInvalidParameterError("Password must contain at least %d special characters", policy.MinimumSpecialCharacters)
	case !policy.AllowWhitespaces && spaces > 0:
		return core.NewInvalidParameterError("Password must not contain whitespaces")
	}
	return nil
}
