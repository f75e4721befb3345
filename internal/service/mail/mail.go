package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"log/slog"
)

// Sender delivers account emails.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// smtpSender delivers mail over plain SMTP. The standard library client is
// used directly; there is no mail dependency in the stack.
type smtpSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender builds a Sender for the given SMTP endpoint. Auth is enabled
// when a username is provided.
func NewSMTPSender(addr, username, password, from string) Sender {
	var auth smtp.Auth
	if strings.TrimSpace(username) != "" {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &smtpSender{addr: addr, auth: auth, from: from}
}

func (s *smtpSender) SendPasswordReset(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: Password reset",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"A password reset was requested for your account.",
		"",
		"Follow this link to choose a new password: " + link,
		"",
		"If you did not request this, you can ignore this message.",
	}, "\r\n")
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// logSender writes mail to the log instead of delivering it. Used when no
// SMTP endpoint is configured (development, tests).
type logSender struct {
	logger *slog.Logger
}

// NewLogSender builds a Sender that only logs.
func NewLogSender(logger *slog.Logger) Sender {
	return &logSender{logger: logger}
}

func (s *logSender) SendPasswordReset(_ context.Context, to, link string) error {
	s.logger.Info("password reset mail (log only)", "to", to, "link", link)
	return nil
}
