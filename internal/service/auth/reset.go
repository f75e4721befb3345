package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
	"github.com/veslo/accounts/internal/service/user"
	"github.com/veslo/accounts/pkg/crypto"
)

var (
	ErrResetTokenInvalid = errors.New("auth: reset token invalid or expired")
)

const (
	resetTokenBytes      = 32
	resetSweepInterval   = 15 * time.Minute
	defaultResetTokenTTL = 30 * time.Minute
)

// RequestPasswordReset issues a single-use reset token and mails the link.
// Unknown or inactive accounts are skipped silently so the endpoint cannot
// be used to enumerate registered emails.
func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.users.GetUserByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}
	if !account.IsActive {
		s.logger.Info("password reset requested for inactive account", "user_id", account.ID)
		return nil
	}
	if err := s.resets.ExpirePendingTokens(ctx, account.ID); err != nil {
		return fmt.Errorf("expire pending reset tokens: %w", err)
	}
	token, err := crypto.RandomToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	ttl := s.cfg.ResetTokenTTL
	if ttl <= 0 {
		ttl = defaultResetTokenTTL
	}
	record := domain.PasswordResetToken{
		TokenHash: crypto.DigestToken(token),
		UserID:    account.ID,
		Status:    domain.ResetTokenStatusPending,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if err := s.resets.CreateResetToken(ctx, &record); err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, account.Email, s.resetLink(token)); err != nil {
		return err
	}
	s.audit.Record(ctx, domain.AuditEvent{UserID: account.ID, ActorID: account.ID, Action: domain.AuditPasswordResetRequest})
	s.logger.Info("password reset requested", "user_id", account.ID)
	return nil
}

// ConfirmPasswordReset consumes a reset token and stores the new password.
func (s Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := user.ValidatePassword(newPassword, s.cfg.PasswordMinLength); err != nil {
		return err
	}
	userID, err := s.resets.ConsumeResetToken(ctx, crypto.DigestToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidArgument) || errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.audit.Record(ctx, domain.AuditEvent{UserID: userID, ActorID: userID, Action: domain.AuditPasswordResetComplete})
	s.logger.Info("password reset completed", "user_id", userID)
	return nil
}

// RunTokenSweeper deletes expired reset tokens on an interval until the
// context ends.
func (s Service) RunTokenSweeper(ctx context.Context) {
	ticker := time.NewTicker(resetSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.resets.DeleteExpiredTokens(ctx, time.Now().UTC())
			if err != nil {
				s.logger.Warn("reset token sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("expired reset tokens removed", "count", removed)
			}
		}
	}
}

func (s Service) resetLink(token string) string {
	base := s.cfg.ResetBaseURL
	parsed, err := url.Parse(base)
	if err != nil || base == "" {
		return token
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
