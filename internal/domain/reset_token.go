package domain

import "time"

const (
	ResetTokenStatusPending = "pending"
	ResetTokenStatusUsed    = "used"
	ResetTokenStatusExpired = "expired"
)

// PasswordResetToken tracks a single-use password reset challenge. The
// opaque token itself is never stored, only its digest.
type PasswordResetToken struct {
	TokenHash string
	UserID    string
	Status    string
	ExpiresAt time.Time
	CreatedAt time.Time
	UsedAt    *time.Time
}

// Expired reports whether the token expiry has passed at the given instant.
func (t PasswordResetToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
