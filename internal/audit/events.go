package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"devsettings/internal/logger"
	"devsettings/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays from the _audit_events table.
func CleanupOldEvents(ctx context.Context, s *store.Store, retentionDays int) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	whereExpr := s.Dialect.OlderThanExpr("created_at", pb, retentionDays)
	n, err := store.Exec(ctx, s.DB, "DELETE FROM _audit_events WHERE "+whereExpr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	if n > 0 {
		logger.Named("audit").Info("deleted old audit events", zap.Int64("count", n))
	}
	return n, nil
}

// List returns the most recent events, newest first, optionally for one app.
func List(ctx context.Context, s *store.Store, appSlug string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	pb := s.Dialect.NewParamBuilder()
	q := "SELECT id, action, app_slug, user_id, metadata, created_at FROM _audit_events"
	if appSlug != "" {
		q += " WHERE app_slug = " + pb.Add(appSlug)
	}
	q += " ORDER BY created_at DESC, id LIMIT " + pb.Add(limit)

	rows, err := store.QueryRows(ctx, s.DB, q, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		e := Event{}
		e.ID, _ = row["id"].(string)
		e.Action, _ = row["action"].(string)
		e.AppSlug, _ = row["app_slug"].(string)
		e.UserID, _ = row["user_id"].(string)
		e.CreatedAt, _ = row["created_at"].(time.Time)
		if raw, ok := row["metadata"].(string); ok && raw != "" {
			_ = json.Unmarshal([]byte(raw), &e.Metadata)
		}
		events = append(events, e)
	}
	return events, nil
}
