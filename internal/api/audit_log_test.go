package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"devsettings/internal/audit"
)

func TestAuditLogRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	if status, body := env.do(t, "POST", "/api/0/sentry-apps/", internalPayload("Audited")); status != 201 {
		t.Fatalf("create: %d %s", status, body)
	}

	status, _ := env.do(t, "GET", "/api/0/sentry-apps/audited/audit-logs/", nil)
	if status != 403 {
		t.Fatalf("expected 403 for a member, got %d", status)
	}
}

func TestAuditLogListsFlushedEvents(t *testing.T) {
	env := newTestEnv(t)
	env.user.Roles = []string{"admin"}
	if status, body := env.do(t, "POST", "/api/0/sentry-apps/", internalPayload("Audited")); status != 201 {
		t.Fatalf("create: %d %s", status, body)
	}

	buf := audit.NewBuffer(env.store, 10, 60_000)
	buf.Record(context.Background(), audit.AppCreated, "audited", env.user.ID, nil)
	buf.Record(context.Background(), audit.AppCreated, "someone-else", env.user.ID, nil)
	buf.Stop()

	status, body := env.do(t, "GET", "/api/0/sentry-apps/audited/audit-logs/?limit=5", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var events []audit.Event
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := make([]string, len(events))
	for i, e := range events {
		got[i] = e.AppSlug + " " + e.Action
	}
	if diff := cmp.Diff([]string{"audited sentry_app.created"}, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	env.user.Organization = "other"
	if status, _ := env.do(t, "GET", "/api/0/sentry-apps/audited/audit-logs/", nil); status != 404 {
		t.Fatalf("expected 404 across organizations, got %d", status)
	}
}
