package service

import (
	"context"
	"errors"
	"fmt"

	"brokeradmin/core"
	"brokeradmin/metrics"
	"brokeradmin/storage"

	"go.uber.org/zap"
)

// AdminSettingsStore defines the settings persistence needed by the settings services.
type AdminSettingsStore interface {
	FindAdminSettingsByKey(ctx context.Context, key string) (*core.AdminSettings, error)
	SaveAdminSettings(ctx context.Context, settings *core.AdminSettings) (*core.AdminSettings, error)
}

// MailReconfigurer reloads the outgoing mail transport from the stored MAIL settings.
type MailReconfigurer interface {
	UpdateMailConfiguration(ctx context.Context) error
}

// MqttAuthNotifier tells dependent subsystems that the MQTT authorization settings changed.
type MqttAuthNotifier interface {
	OnMqttAuthSettingUpdate(ctx context.Context, settings core.MqttAuthSettings) error
}

// AdminSettingsService reads and writes global settings records.
//
// Every record leaving the service is redacted. A save persists first and only then
// dispatches the side effect of the record's type:
//   - MAIL reloads the mail transport
//   - MQTT_AUTHORIZATION notifies subscribers with the decoded settings
//   - any other key has no side effect
//
// A failing side effect is returned to the caller but the saved record is not rolled back.
type AdminSettingsService struct {
	store    AdminSettingsStore
	mail     MailReconfigurer
	notifier MqttAuthNotifier
	schemas  settingsSchemas
	logger   *zap.SugaredLogger
}

// NewAdminSettingsService creates the service and compiles the payload schemas.
func NewAdminSettingsService(store AdminSettingsStore, mail MailReconfigurer, notifier MqttAuthNotifier, logger *zap.SugaredLogger) (*AdminSettingsService, error) {
	schemas, err := compileSettingsSchemas()
	if err != nil {
		return nil, err
	}
	return &AdminSettingsService{
		store:    store,
		mail:     mail,
		notifier: notifier,
		schemas:  schemas,
		logger:   logger,
	}, nil
}

// GetAdminSettings returns the redacted record stored under key.
func (s *AdminSettingsService) GetAdminSettings(ctx context.Context, key string) (*core.AdminSettings, error) {
	if key == "" {
		return nil, core.NewInvalidParameterError("Settings key must be specified")
	}
	stored, err := s.findByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return core.RedactSettings(stored), nil
}

// SaveAdminSettings replaces the record stored under settings.Key and applies the side
// effect of its type. A MAIL payload without a password keeps the stored one.
func (s *AdminSettingsService) SaveAdminSettings(ctx context.Context, settings *core.AdminSettings) (*core.AdminSettings, error) {
	if settings == nil || settings.Key == "" {
		return nil, core.NewInvalidParameterError("Settings key must be specified")
	}
	if settings.Key == core.SecuritySettingsKey {
		return nil, core.NewInvalidParameterError("Settings key %s is reserved", settings.Key)
	}

	settingType := settings.Type()
	if err := s.schemas.validate(settingType, settings.JSONValue); err != nil {
		return nil, err
	}

	candidate := settings.Clone()
	if settingType == core.SettingTypeMail && !candidate.JSONValue.Has(core.MailPasswordField) {
		if err := s.keepStoredMailPassword(ctx, candidate); err != nil {
			return nil, err
		}
	}

	saved, err := s.store.SaveAdminSettings(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to save admin settings %s: %w", settings.Key, err)
	}
	metrics.SettingsSaved.WithLabelValues(settingType.String()).Inc()
	s.logger.Infow("Admin settings saved", "key", saved.Key, "type", settingType.String())

	switch settingType {
	case core.SettingTypeMail:
		if err := s.mail.UpdateMailConfiguration(ctx); err != nil {
			return nil, s.sideEffectFailed(settingType, "Failed to apply mail settings", err)
		}
		return core.RedactSettings(saved), nil

	case core.SettingTypeMqttAuthorization:
		var typed core.MqttAuthSettings
		if err := saved.JSONValue.Decode(&typed); err != nil {
			return nil, s.sideEffectFailed(settingType, "Failed to decode MQTT authorization settings", err)
		}
		if err := s.notifier.OnMqttAuthSettingUpdate(ctx, typed); err != nil {
			return nil, s.sideEffectFailed(settingType, "Failed to notify MQTT authorization settings update", err)
		}
		return saved, nil

	default:
		return saved, nil
	}
}

func (s *AdminSettingsService) findByKey(ctx context.Context, key string) (*core.AdminSettings, error) {
	stored, err := s.store.FindAdminSettingsByKey(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrSettingsNotFound) {
			return nil, core.NewNotFoundError("No Administration settings found for key: %s", key)
		}
		return nil, fmt.Errorf("failed to load admin settings %s: %w", key, err)
	}
	return stored, nil
}

// keepStoredMailPassword copies the stored MAIL password into candidate, if one exists.
func (s *AdminSettingsService) keepStoredMailPassword(ctx context.Context, candidate *core.AdminSettings) error {
	stored, err := s.findByKey(ctx, core.MailSettingsKey)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return err
	}
	if stored.JSONValue.Has(core.MailPasswordField) {
		candidate.JSONValue = candidate.JSONValue.With(core.MailPasswordField, stored.JSONValue[core.MailPasswordField])
	}
	return nil
}

func (s *AdminSettingsService) sideEffectFailed(t core.SettingType, msg string, err error) error {
	metrics.SettingsSideEffectFailures.WithLabelValues(t.String()).Inc()
	s.logger.Errorw("Settings saved but side effect failed", "type", t.String(), "error", err)
	return core.NewDelegatedFailureError(msg, err)
}
