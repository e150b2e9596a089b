// Package notify delivers transactional email.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
)

// Message is a single outgoing email with plain and HTML bodies.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends messages. Implementations must honour ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer picks the SMTP transport when a relay is configured and the log transport otherwise.
func NewMailer(cfg config.NotificationConfig, logger *zap.Logger) Mailer {
	if cfg.SMTPAddr() == "" {
		logger.Warn("SMTP_HOST not provided; emails will only be logged")
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer talks to a relay with opportunistic STARTTLS and optional PLAIN auth.
type SMTPMailer struct {
	host string
	from string
	opts []mail.Option
}

// NewSMTPMailer builds a mailer for the configured relay.
func NewSMTPMailer(cfg config.NotificationConfig) *SMTPMailer {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12}),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword))
	}
	return &SMTPMailer{host: cfg.SMTPHost, from: cfg.EmailFrom, opts: opts}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out, err := BuildMessage(m.from, msg, time.Now())
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.host, m.opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// BuildMessage renders msg as multipart/alternative when both bodies are set.
func BuildMessage(from string, msg Message, at time.Time) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	out.Subject(sanitizeHeader(msg.Subject))
	out.SetDateWithValue(at)
	out.SetMessageID()

	switch {
	case msg.Text != "" && msg.HTML != "":
		out.SetBodyString(mail.TypeTextPlain, msg.Text)
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		out.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		out.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	return out, nil
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer returns a development mailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info("email not sent (no SMTP relay)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}
