package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
)

const resetTokenColumns = `token_hash, user_id, status, expires_at, created_at, used_at`

// CreateResetToken persists a new password reset challenge.
func (r *Repository) CreateResetToken(ctx context.Context, token *domain.PasswordResetToken) error {
	if token == nil || strings.TrimSpace(token.TokenHash) == "" {
		return repository.ErrInvalidArgument
	}
	status := strings.TrimSpace(token.Status)
	if status == "" {
		status = domain.ResetTokenStatusPending
	}
	const query = `INSERT INTO password_reset_tokens (token_hash, user_id, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())`
	_, err := r.pool.Exec(ctx, query,
		strings.TrimSpace(token.TokenHash),
		token.UserID,
		status,
		token.ExpiresAt.UTC(),
	)
	if err != nil {
		return mapConstraint(err)
	}
	token.Status = status
	token.CreatedAt = time.Now().UTC()
	return nil
}

// GetResetToken fetches a reset challenge by token digest.
func (r *Repository) GetResetToken(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE token_hash = $1`
	row := r.pool.QueryRow(ctx, query, strings.TrimSpace(tokenHash))
	var (
		t      domain.PasswordResetToken
		usedAt sql.NullTime
	)
	if err := row.Scan(&t.TokenHash, &t.UserID, &t.Status, &t.ExpiresAt, &t.CreatedAt, &usedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		value := usedAt.Time.UTC()
		t.UsedAt = &value
	}
	return &t, nil
}

// ConsumeResetToken transitions a pending, unexpired token to used and
// returns the owning user id.
func (r *Repository) ConsumeResetToken(ctx context.Context, tokenHash string) (string, error) {
	const query = `UPDATE password_reset_tokens
		SET status = 'used',
			used_at = NOW()
		WHERE token_hash = $1
			AND status = 'pending'
			AND expires_at > NOW()
		RETURNING user_id`
	row := r.pool.QueryRow(ctx, query, strings.TrimSpace(tokenHash))
	var userID string
	if err := row.Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrInvalidArgument
		}
		return "", err
	}
	return userID, nil
}

// ExpirePendingTokens invalidates outstanding challenges for a user.
func (r *Repository) ExpirePendingTokens(ctx context.Context, userID string) error {
	const query = `UPDATE password_reset_tokens SET status = 'expired' WHERE user_id = $1 AND status = 'pending'`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

// DeleteExpiredTokens removes challenges past their expiry, for periodic sweeps.
func (r *Repository) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM password_reset_tokens WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
