package domain

import (
	"encoding/json"
	"time"
)

// Audit actions recorded for account activity.
const (
	AuditUserRegistered        = "user.registered"
	AuditUserCreated           = "user.created"
	AuditUserLogin             = "user.login"
	AuditUserUpdated           = "user.updated"
	AuditUserActiveChanged     = "user.active_changed"
	AuditRoleChanged           = "role.changed"
	AuditPasswordChanged       = "password.changed"
	AuditPasswordResetRequest  = "password.reset_requested"
	AuditPasswordResetComplete = "password.reset_completed"
)

// AuditEvent records a single account action for the audit trail.
type AuditEvent struct {
	ID        int64
	UserID    string
	ActorID   string
	Action    string
	Detail    json.RawMessage
	CreatedAt time.Time
}
