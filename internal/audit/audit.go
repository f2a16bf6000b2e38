// Package audit records integration registration changes. Events are
// buffered in memory and written to _audit_events in batches.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the API.
const (
	AppCreated   = "sentry_app.created"
	AppUpdated   = "sentry_app.updated"
	AppDeleted   = "sentry_app.deleted"
	TokenCreated = "sentry_app_token.created"
	TokenRevoked = "sentry_app_token.revoked"
)

// Event is a row in the _audit_events table.
type Event struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	AppSlug   string         `json:"app_slug"`
	UserID    string         `json:"user_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, action, appSlug, userID string, metadata map[string]any)
}

// NewEvent stamps an event with an id and creation time.
func NewEvent(action, appSlug, userID string, metadata map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Action:    action,
		AppSlug:   appSlug,
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Noop discards all events. Used when auditing is disabled.
type Noop struct{}

func (Noop) Record(context.Context, string, string, string, map[string]any) {}
