package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"brokeradmin/core"
	"brokeradmin/metrics"
	"brokeradmin/storage"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const (
	// UnableToSendMail is the message of every delegated mail failure.
	UnableToSendMail = "Unable to send mail"

	testMailSubject = "Test message from MQTT broker administration"
	testMailBody    = "This is a test email sent to verify the mail server settings of your MQTT broker."

	defaultSendTimeout = 10 * time.Second
	smtpsPort          = 465
	smtpsProtocol      = "smtps"
)

// ErrMailNotConfigured is returned by SendMail before any mail settings were loaded.
var ErrMailNotConfigured = errors.New("mail server is not configured")

var tlsVersions = map[string]uint16{
	"TLSv1":   tls.VersionTLS10,
	"TLSv1.1": tls.VersionTLS11,
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// MailSettingsSource loads the stored MAIL settings record.
type MailSettingsSource interface {
	FindAdminSettingsByKey(ctx context.Context, key string) (*core.AdminSettings, error)
}

// SMTPMailService sends system mail through the SMTP server described by the stored
// MAIL settings.
type SMTPMailService struct {
	source  MailSettingsSource
	breaker *core.CircuitBreaker
	logger  *zap.SugaredLogger

	mu       sync.RWMutex
	settings *core.MailSettings
}

// NewSMTPMailService creates a mail service. The configuration is empty until
// UpdateMailConfiguration runs.
func NewSMTPMailService(source MailSettingsSource, breaker *core.CircuitBreaker, logger *zap.SugaredLogger) *SMTPMailService {
	return &SMTPMailService{source: source, breaker: breaker, logger: logger}
}

// UpdateMailConfiguration reloads the stored MAIL settings. A missing record leaves the
// service unconfigured.
func (s *SMTPMailService) UpdateMailConfiguration(ctx context.Context) error {
	record, err := s.source.FindAdminSettingsByKey(ctx, core.MailSettingsKey)
	if err != nil {
		if errors.Is(err, storage.ErrSettingsNotFound) || core.IsNotFound(err) {
			s.mu.Lock()
			s.settings = nil
			s.mu.Unlock()
			s.logger.Warn("No mail settings stored, outgoing mail disabled")
			return nil
		}
		return fmt.Errorf("failed to load mail settings: %w", err)
	}

	var settings core.MailSettings
	if err := record.JSONValue.Decode(&settings); err != nil {
		return fmt.Errorf("failed to decode mail settings: %w", err)
	}
	if settings.SMTPHost == "" || settings.SMTPPort <= 0 {
		return fmt.Errorf("mail settings are incomplete: host %q port %d", settings.SMTPHost, settings.SMTPPort)
	}

	s.mu.Lock()
	s.settings = &settings
	s.mu.Unlock()
	s.logger.Infow("Mail configuration updated", "smtp_host", settings.SMTPHost, "smtp_port", settings.SMTPPort)
	return nil
}

// Configured reports whether mail settings are loaded.
func (s *SMTPMailService) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings != nil
}

// SendTestMail sends the fixed test message to email using the candidate settings
// rather than the loaded configuration.
func (s *SMTPMailService) SendTestMail(ctx context.Context, settings core.MailSettings, email string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", settings.MailFrom)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", testMailSubject)
	msg.SetBody("text/plain", testMailBody)

	if err := send(ctx, settings, msg); err != nil {
		metrics.TestMails.WithLabelValues("failure").Inc()
		s.logger.Warnw("Test mail failed", "smtp_host", settings.SMTPHost, "error", err)
		return core.NewDelegatedFailureError(UnableToSendMail, err)
	}
	metrics.TestMails.WithLabelValues("success").Inc()
	s.logger.Infow("Test mail sent", "smtp_host", settings.SMTPHost)
	return nil
}

// SendMail sends an HTML message through the loaded configuration. Repeated failures
// open the circuit breaker and further sends fail fast.
func (s *SMTPMailService) SendMail(ctx context.Context, to []string, subject, htmlBody string) error {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()
	if settings == nil {
		return ErrMailNotConfigured
	}
	if len(to) == 0 {
		return errors.New("no recipients specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", settings.MailFrom)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	err := s.breaker.Execute(func() error {
		return send(ctx, *settings, msg)
	})
	if err != nil {
		return core.NewDelegatedFailureError(UnableToSendMail, err)
	}
	return nil
}

var lockoutTemplate = template.Must(template.New("lockout").Parse(
	`<p>The account <b>{{.Email}}</b> was disabled after {{.Attempts}} unsuccessful login attempts.</p>` +
		`<p>A system administrator must re-enable it before it can sign in again.</p>`))

// SendAccountLockoutEmail notifies the lockout address that userEmail was disabled.
func (s *SMTPMailService) SendAccountLockoutEmail(ctx context.Context, lockoutEmail, userEmail string, attempts int) error {
	var body bytes.Buffer
	data := struct {
		Email    string
		Attempts int
	}{userEmail, attempts}
	if err := lockoutTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render lockout mail: %w", err)
	}
	return s.SendMail(ctx, []string{lockoutEmail}, "Account locked: "+userEmail, body.String())
}

// transport is the connection plan derived from MAIL settings. SSL wraps the socket in
// TLS from the first byte (smtps); otherwise STARTTLS is negotiated when TLS is enabled.
type transport struct {
	addr      string
	host      string
	ssl       bool
	startTLS  bool
	tlsConfig *tls.Config
	username  string
	password  string
}

func newTransport(settings core.MailSettings) transport {
	tlsConfig := &tls.Config{ServerName: settings.SMTPHost, MinVersion: tls.VersionTLS12}
	if v, ok := tlsVersions[strings.TrimSpace(settings.TLSVersion)]; ok {
		tlsConfig.MinVersion = v
	}
	ssl := strings.EqualFold(strings.TrimSpace(settings.SMTPProtocol), smtpsProtocol) ||
		(settings.EnableTLS && settings.SMTPPort == smtpsPort)
	return transport{
		addr:      net.JoinHostPort(settings.SMTPHost, strconv.Itoa(settings.SMTPPort)),
		host:      settings.SMTPHost,
		ssl:       ssl,
		startTLS:  settings.EnableTLS && !ssl,
		tlsConfig: tlsConfig,
		username:  settings.Username,
		password:  settings.Password,
	}
}

// smtpSession implements gomail.SendCloser over one SMTP client connection.
type smtpSession struct {
	client *smtp.Client
}

func (s *smtpSession) Send(from string, to []string, msg io.WriterTo) error {
	if err := s.client.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := s.client.Rcpt(addr); err != nil {
			return err
		}
	}
	w, err := s.client.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *smtpSession) Close() error {
	return s.client.Quit()
}

// dial opens an SMTP session whose socket carries the deadline of ctx.
func (t transport) dial(ctx context.Context, conn net.Conn) (*smtpSession, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}
	if t.ssl {
		conn = tls.Client(conn, t.tlsConfig)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return nil, err
	}
	if t.startTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.tlsConfig); err != nil {
				_ = client.Close()
				return nil, err
			}
		}
	}
	if t.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", t.username, t.password, t.host)); err != nil {
				_ = client.Close()
				return nil, err
			}
		}
	}
	return &smtpSession{client: client}, nil
}

// send runs one SMTP exchange bounded by ctx and the settings timeout (milliseconds).
// The socket is closed when ctx ends, so nothing outlives the call.
func send(ctx context.Context, settings core.MailSettings, msg *gomail.Message) error {
	if settings.SMTPHost == "" {
		return errors.New("smtp host is not set")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := defaultSendTimeout
	if settings.Timeout > 0 {
		timeout = time.Duration(settings.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t := newTransport(settings)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return exchangeError(ctx, t, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	session, err := t.dial(ctx, conn)
	if err != nil {
		return exchangeError(ctx, t, err)
	}
	if err := gomail.Send(session, msg); err != nil {
		_ = session.client.Close()
		return exchangeError(ctx, t, err)
	}
	if err := session.Close(); err != nil {
		return exchangeError(ctx, t, err)
	}
	return nil
}

func exchangeError(ctx context.Context, t transport, err error) error {
	if cause := ctx.Err(); cause != nil || errors.Is(err, os.ErrDeadlineExceeded) {
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		return fmt.Errorf("smtp exchange with %s timed out: %w", t.addr, cause)
	}
	return err
}
