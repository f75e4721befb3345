package domain

import "time"

// Role enumerates account authorization levels.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether the role grants staff access.
func (r Role) Staff() bool {
	return r == RoleManager || r == RoleAdmin
}

// User represents a platform account.
type User struct {
	ID           string
	Username     string
	Email        string
	PhoneNumber  string
	FirstName    string
	LastName     string
	PasswordHash []byte
	Role         Role
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	DateJoined   time.Time
	UpdatedAt    time.Time
}
