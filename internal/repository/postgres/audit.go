package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
)

// InsertAuditEvent appends an event to the audit trail.
func (r *Repository) InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	if event == nil || event.Action == "" {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO audit_events (user_id, actor_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var detail any
	if len(event.Detail) > 0 {
		detail = []byte(event.Detail)
	}
	row := r.pool.QueryRow(ctx, query,
		nullString(event.UserID),
		nullString(event.ActorID),
		event.Action,
		detail,
		event.CreatedAt.UTC(),
	)
	return row.Scan(&event.ID)
}

// ListAuditEvents returns audit events, optionally scoped to one user,
// newest first.
func (r *Repository) ListAuditEvents(ctx context.Context, userID string, limit, offset int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, user_id, actor_id, action, detail, created_at FROM audit_events`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	if len(args) == 0 {
		query += ` ORDER BY id DESC LIMIT $1 OFFSET $2`
	} else {
		query += ` ORDER BY id DESC LIMIT $2 OFFSET $3`
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var (
			event   domain.AuditEvent
			user    sql.NullString
			actor   sql.NullString
			payload []byte
		)
		if err := rows.Scan(&event.ID, &user, &actor, &event.Action, &payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		if user.Valid {
			event.UserID = user.String
		}
		if actor.Valid {
			event.ActorID = actor.String
		}
		if len(payload) > 0 {
			event.Detail = json.RawMessage(payload)
		}
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}
