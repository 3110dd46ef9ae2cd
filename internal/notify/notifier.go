// Package notify delivers account notifications such as password reset links.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Notifier sends account notifications
type Notifier interface {
	SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error
}

// MailConfig holds SMTP settings for MailNotifier
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// MailNotifier sends notifications over SMTP
type MailNotifier struct {
	client *mail.Client
	from   string
	logger *zap.Logger
}

// NewMailNotifier creates a MailNotifier. The connection is opened per message.
func NewMailNotifier(cfg MailConfig, logger *zap.Logger) (*MailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &MailNotifier{
		client: client,
		from:   cfg.From,
		logger: logger,
	}, nil
}

// SendPasswordReset mails the reset link to the account owner
func (n *MailNotifier) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	msg, err := BuildPasswordResetMessage(n.from, to, link, expiresAt)
	if err != nil {
		return err
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	n.logger.Info("password reset email sent", zap.String("to", to))
	return nil
}

// BuildPasswordResetMessage renders the reset email
func BuildPasswordResetMessage(from, to, link string, expiresAt time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("failed to set From address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("failed to set To address: %w", err)
	}

	msg.Subject("Reset your password")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"We received a request to reset the password for your account.\n\n"+
			"Open the link below to choose a new password:\n%s\n\n"+
			"The link expires at %s. If you did not ask for a reset, you can ignore this email.\n",
		link,
		expiresAt.UTC().Format(time.RFC1123),
	))
	return msg, nil
}

// LogNotifier records notifications in the log instead of sending them. It is
// used when no SMTP server is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendPasswordReset logs the dispatch. The link carries the secret and is never logged.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, to, link string, expiresAt time.Time) error {
	n.logger.Warn("SMTP not configured, password reset email not sent",
		zap.String("to", to),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}
