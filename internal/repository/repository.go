package repository

import (
	"context"
	"time"

	"github.com/veslo/accounts/internal/domain"
)

// UserRepository persists users and their profiles.
type UserRepository interface {
	// CreateUser inserts the user and an initial profile row in one transaction.
	CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	// UpdateUser persists identity fields (names, email, phone, username).
	UpdateUser(ctx context.Context, user *domain.User) error
	// UpdateUserWithProfile persists user and profile changes in one transaction.
	UpdateUserWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	UpdateRole(ctx context.Context, id string, role domain.Role, staff bool) error
	SetActive(ctx context.Context, id string, active bool) error
	// SearchUsers matches the query against username, email, phone and names.
	// An empty query lists everyone, newest first.
	SearchUsers(ctx context.Context, query string, limit, offset int) ([]domain.User, error)
}

// ProfileRepository reads profile rows.
type ProfileRepository interface {
	GetProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error)
}

// ResetTokenRepository persists password reset challenges.
type ResetTokenRepository interface {
	CreateResetToken(ctx context.Context, token *domain.PasswordResetToken) error
	GetResetToken(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error)
	// ConsumeResetToken transitions a pending, unexpired token to used and
	// returns the owning user id. Returns ErrInvalidArgument otherwise.
	ConsumeResetToken(ctx context.Context, tokenHash string) (string, error)
	// ExpirePendingTokens invalidates outstanding tokens for a user, so only
	// the most recently issued link works.
	ExpirePendingTokens(ctx context.Context, userID string) error
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// AuditRepository stores the account audit trail.
type AuditRepository interface {
	InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error
	ListAuditEvents(ctx context.Context, userID string, limit, offset int) ([]domain.AuditEvent, error)
}
