package service

import (
	"context"
	"fmt"
	"html"
	"net/url"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/notify"
)

// Notifier sends the transactional emails of the account lifecycle.
type Notifier interface {
	SendVerification(ctx context.Context, account *domain.Account, token string) error
	SendPasswordReset(ctx context.Context, account *domain.Account, token string) error
}

// NotificationService renders lifecycle emails and hands them to a mailer.
type NotificationService struct {
	mailer notify.Mailer
	logger *zap.Logger
	cfg    config.NotificationConfig
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService creates the service.
func NewNotificationService(mailer notify.Mailer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		mailer: mailer,
		logger: logger,
		cfg:    cfg,
	}
}

// VerificationLink is the backend URL that consumes a verification token.
func (n *NotificationService) VerificationLink(token string) string {
	return fmt.Sprintf("%s/api/v1/verify-email?code=%s", n.cfg.BackendURL, url.QueryEscape(token))
}

// ResetLink is the frontend page that collects the new password.
func (n *NotificationService) ResetLink(token string) string {
	return fmt.Sprintf("%s/reset-password/%s", n.cfg.FrontendURL, url.PathEscape(token))
}

func (n *NotificationService) SendVerification(ctx context.Context, account *domain.Account, token string) error {
	link := n.VerificationLink(token)
	return n.send(ctx, notify.Message{
		To:      account.Email,
		Subject: "Email Verification",
		Text:    greeting(account) + "\n\nVerify your email: " + link,
		HTML:    fmt.Sprintf(`<p>%s</p><p>Click <a href="%s">here</a> to verify your email.</p>`, html.EscapeString(greeting(account)), html.EscapeString(link)),
	}, "verification")
}

func (n *NotificationService) SendPasswordReset(ctx context.Context, account *domain.Account, token string) error {
	link := n.ResetLink(token)
	return n.send(ctx, notify.Message{
		To:      account.Email,
		Subject: "Reset your password",
		Text:    greeting(account) + "\n\nClick the link to reset your password: " + link,
		HTML:    fmt.Sprintf(`<p>%s</p><p>Click <a href="%s">here</a> to reset your password.</p>`, html.EscapeString(greeting(account)), html.EscapeString(link)),
	}, "password_reset")
}

func greeting(account *domain.Account) string {
	if name := account.FullName(); name != "" {
		return "Hi " + name + ","
	}
	return "Hi,"
}

func (n *NotificationService) send(ctx context.Context, msg notify.Message, kind string) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout())
	defer cancel()

	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	n.logger.Debug("email sent", zap.String("kind", kind), zap.String("to", msg.To))
	return nil
}
