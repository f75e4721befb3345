package domain

import "time"

// Profile carries per-user presentation details, stored 1:1 with users.
type Profile struct {
	UserID     string
	Bio        string
	AvatarURL  string
	TelegramID string
	UpdatedAt  time.Time
}
