package service

import (
	"context"
	"errors"

	"brokeradmin/core"

	"go.uber.org/zap"
)

// testMailFailure is used when the sender fails without a typed error.
const testMailFailure = "Unable to send mail"

// TestMailSender sends the fixed test message with candidate settings.
type TestMailSender interface {
	SendTestMail(ctx context.Context, settings core.MailSettings, email string) error
}

// MailProbe checks candidate mail settings by sending a test message to the requester.
type MailProbe struct {
	store  AdminSettingsStore
	sender TestMailSender
	logger *zap.SugaredLogger
}

// NewMailProbe creates a probe.
func NewMailProbe(store AdminSettingsStore, sender TestMailSender, logger *zap.SugaredLogger) *MailProbe {
	return &MailProbe{store: store, sender: sender, logger: logger}
}

// SendTestMail sends a test message to requesterEmail using candidate. Only MAIL records
// are probed; any other key is a no-op. A candidate without a password borrows the stored
// one, and is rejected with ItemNotFound when no MAIL record is stored. The returned error
// keeps the transport's diagnostic: "<message>: <cause>".
func (p *MailProbe) SendTestMail(ctx context.Context, candidate *core.AdminSettings, requesterEmail string) error {
	if candidate == nil {
		return core.NewInvalidParameterError("Settings must be specified")
	}
	if candidate.Type() != core.SettingTypeMail {
		return nil
	}
	if requesterEmail == "" {
		return core.NewInvalidParameterError("Recipient email must be specified")
	}

	payload := candidate.JSONValue.Clone()
	if !payload.Has(core.MailPasswordField) {
		stored, err := p.store.FindAdminSettingsByKey(ctx, core.MailSettingsKey)
		switch {
		case err == nil:
			if stored.JSONValue.Has(core.MailPasswordField) {
				payload = payload.With(core.MailPasswordField, stored.JSONValue[core.MailPasswordField])
			}
		case isSettingsNotFound(err):
			return core.NewNotFoundError("No Administration settings found for key: %s", core.MailSettingsKey)
		default:
			return err
		}
	}

	var settings core.MailSettings
	if err := payload.Decode(&settings); err != nil {
		return core.NewInvalidParameterError("Invalid mail settings: %v", err)
	}

	if err := p.sender.SendTestMail(ctx, settings, requesterEmail); err != nil {
		p.logger.Warnw("Test mail probe failed", "recipient", requesterEmail, "smtp_host", settings.SMTPHost)
		return probeError(err)
	}
	return nil
}

// probeError exposes the cause of a delegated failure in the error message.
func probeError(err error) error {
	var be *core.BrokerError
	if !errors.As(err, &be) {
		return core.NewDelegatedFailureError(testMailFailure+": "+err.Error(), err)
	}
	if be.Cause == nil {
		return be
	}
	return be.WithMessage(be.Message + ": " + be.Cause.Error())
}
