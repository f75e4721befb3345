package audit

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/repository"
	"github.com/veslo/accounts/internal/ws"
)

// StreamTopic is the hub topic carrying live account events.
const StreamTopic = "audit"

// Service persists account events and fans them out to live subscribers.
type Service struct {
	repo   repository.AuditRepository
	hub    *ws.Hub
	logger *slog.Logger
}

// New constructs an audit service.
func New(repo repository.AuditRepository, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{repo: repo, hub: hub, logger: logger}
}

// Record stores and broadcasts an account event. Failures are logged but
// never surfaced; the audit trail must not fail the operation it describes.
func (s Service) Record(ctx context.Context, event domain.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	if s.repo != nil {
		if err := s.repo.InsertAuditEvent(ctx, &event); err != nil {
			s.logger.Warn("failed to persist audit event", "action", event.Action, "error", err)
		}
	}
	s.broadcast(event)
}

// List returns stored audit events, optionally scoped to one user.
func (s Service) List(ctx context.Context, userID string, limit, offset int) ([]domain.AuditEvent, error) {
	return s.repo.ListAuditEvents(ctx, userID, limit, offset)
}

// Hub returns the stream hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) broadcast(event domain.AuditEvent) {
	if s.hub == nil {
		return
	}
	data, err := MarshalEvent(event)
	if err != nil {
		s.logger.Warn("failed to marshal audit payload", "error", err)
		return
	}
	s.hub.Broadcast(StreamTopic, data)
}

// MarshalEvent formats an audit event for streaming payloads.
func MarshalEvent(event domain.AuditEvent) ([]byte, error) {
	var detail any
	if len(event.Detail) > 0 {
		detail = json.RawMessage(event.Detail)
	}
	payload := map[string]any{
		"id":         event.ID,
		"user_id":    event.UserID,
		"actor_id":   event.ActorID,
		"action":     event.Action,
		"detail":     detail,
		"created_at": event.CreatedAt.Format(time.RFC3339Nano),
	}
	return json.Marshal(payload)
}
