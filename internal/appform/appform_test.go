package appform

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"devsettings/internal/form"
	"devsettings/internal/permissions"
)

var testCatalog = permissions.Catalog{
	{Resource: permissions.Project, Choices: []permissions.Choice{
		{Name: permissions.Read, Scopes: []string{"project:read"}},
		{Name: permissions.Write, Scopes: []string{"project:read", "project:write"}},
	}},
	{Resource: permissions.Team, Choices: []permissions.Choice{
		{Name: permissions.Read, Scopes: []string{"team:read"}},
	}},
}

func stagedFields() form.Fields {
	var f form.Fields
	f.Set("name", "My App")
	f.Set("Project--permission", "write")
	f.Set("scopes", []string{"project:read", "project:write"})
	f.Set("Team--permission", "no-access")
	f.Set("isAlertable", true)
	f.Set("schema", map[string]any{"elements": []any{}})
	return f
}

func TestFilterSubmission(t *testing.T) {
	in := stagedFields()
	out := FilterSubmission(in)

	want := []string{"name", "scopes", "isAlertable", "schema"}
	if diff := cmp.Diff(want, out.Keys()); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	for _, k := range out.Keys() {
		if strings.HasSuffix(k, "--permission") {
			t.Fatalf("synthetic key %s leaked", k)
		}
		got, _ := out.Get(k)
		orig, ok := in.Get(k)
		if !ok {
			t.Fatalf("key %s not in input", k)
		}
		if diff := cmp.Diff(orig, got); diff != "" {
			t.Fatalf("value of %s changed (-want +got):\n%s", k, diff)
		}
	}
	// input untouched
	if in.Len() != 6 {
		t.Fatalf("input mutated, now %d fields", in.Len())
	}
}

func TestFilterSubmissionIdempotent(t *testing.T) {
	once := FilterSubmission(stagedFields())
	twice := FilterSubmission(once)
	if diff := cmp.Diff(once.Map(), twice.Map()); diff != "" {
		t.Fatalf("values (-once +twice):\n%s", diff)
	}
	if diff := cmp.Diff(once.Keys(), twice.Keys()); diff != "" {
		t.Fatalf("keys (-once +twice):\n%s", diff)
	}

	var empty form.Fields
	if FilterSubmission(empty).Len() != 0 {
		t.Fatal("expected empty output for empty input")
	}
}

func TestParseScope(t *testing.T) {
	scope, ok := ParseScope("Requested permission of project:read is too broad")
	if !ok || scope != "project:read" {
		t.Fatalf("expected project:read, got %q (ok=%v)", scope, ok)
	}
	scope, ok = ParseScope("Requested permission of member:admin exceeds requester's permission. Please contact an administrator to make the requested change.")
	if !ok || scope != "member:admin" {
		t.Fatalf("expected member:admin, got %q", scope)
	}
	for _, msg := range []string{"", "bad scope", "Requested permission of projectread", "requested permission of project:read"} {
		if _, ok := ParseScope(msg); ok {
			t.Fatalf("expected no match for %q", msg)
		}
	}
}

func TestRemapErrors(t *testing.T) {
	remap := Remapper(testCatalog)
	in := map[string]any{
		"scopes": []any{"Requested permission of project:read is too broad"},
		"detail": "bad request",
	}
	got := remap(in)
	want := map[string]any{
		"detail":              "bad request",
		"Project--permission": []string{"Requested permission of project:read is too broad"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("remap (-want +got):\n%s", diff)
	}
	if _, ok := got["scopes"]; ok {
		t.Fatal("scopes key must not survive remapping")
	}
	if _, ok := in["scopes"]; !ok {
		t.Fatal("input payload must not be mutated")
	}
}

func TestRemapErrors_LastMessageWins(t *testing.T) {
	remap := Remapper(testCatalog)
	got := remap(map[string]any{
		"scopes": []string{
			"Requested permission of project:read exceeds requester's permission.",
			"Requested permission of team:read exceeds requester's permission.",
			"Requested permission of project:write exceeds requester's permission.",
		},
	})
	want := map[string]any{
		"Project--permission": []string{"Requested permission of project:write exceeds requester's permission."},
		"Team--permission":    []string{"Requested permission of team:read exceeds requester's permission."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("remap (-want +got):\n%s", diff)
	}
}

func TestRemapErrors_DropsUnplaceable(t *testing.T) {
	remap := Remapper(testCatalog)
	got := remap(map[string]any{
		"scopes": []any{"something odd happened", "Requested permission of unknown:scope", 7},
		"name":   []any{"required"},
	})
	want := map[string]any{"name": []any{"required"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("remap (-want +got):\n%s", diff)
	}
}

func TestRemapErrors_Nil(t *testing.T) {
	if got := RemapErrors(nil); got != nil {
		t.Fatalf("expected nil passthrough, got %v", got)
	}
}

func TestRemapErrors_DefaultCatalog(t *testing.T) {
	got := RemapErrors(map[string]any{"scopes": []any{"Requested permission of project:releases exceeds requester's permission."}})
	if _, ok := got["Release--permission"]; !ok {
		t.Fatalf("expected Release--permission, got %v", got)
	}
}

type rejecting struct{ body map[string]any }

func (r *rejecting) Submit(context.Context, string, string, form.Fields) (map[string]any, error) {
	return nil, &rejection{body: r.body}
}

type rejection struct{ body map[string]any }

func (e *rejection) Error() string        { return "400 Bad Request" }
func (e *rejection) StatusCode() int      { return 400 }
func (e *rejection) Body() map[string]any { return e.body }

type recording struct{ data form.Fields }

func (r *recording) Submit(_ context.Context, _, _ string, data form.Fields) (map[string]any, error) {
	r.data = data
	return map[string]any{"slug": "my-app"}, nil
}

func TestNewModelSubmitPipeline(t *testing.T) {
	m := NewModel(testCatalog, false)
	m.SetInitialData(map[string]any{"name": "My App", "scopes": []string{}})
	m.SetValue(permissions.FieldKey(permissions.Project), permissions.Write)
	m.SetValue(permissions.FieldKey(permissions.Team), permissions.Read)
	SyncScopes(m, testCatalog)

	rec := &recording{}
	if _, err := m.Submit(context.Background(), rec, "POST", "/sentry-apps/"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if diff := cmp.Diff([]string{"name", "scopes"}, rec.data.Keys()); diff != "" {
		t.Fatalf("payload keys (-want +got):\n%s", diff)
	}
	scopes, _ := rec.data.Get("scopes")
	if diff := cmp.Diff([]string{"project:read", "project:write", "team:read"}, scopes); diff != "" {
		t.Fatalf("scopes (-want +got):\n%s", diff)
	}

	rej := &rejecting{body: map[string]any{
		"scopes": []any{"Requested permission of team:read exceeds requester's permission."},
	}}
	if _, err := m.Submit(context.Background(), rej, "POST", "/sentry-apps/"); err == nil {
		t.Fatal("expected rejection")
	}
	if got := m.FieldErrors("Team--permission"); len(got) != 1 {
		t.Fatalf("expected one Team error, got %v", got)
	}
	if got := m.FirstErrorField(); got != "Team--permission" {
		t.Fatalf("expected first error on Team--permission, got %s", got)
	}
}

func TestNewModelInternalWebhookReaction(t *testing.T) {
	m := NewModel(testCatalog, true)
	m.SetInitialData(map[string]any{"webhookUrl": "https://example.com", "isAlertable": true})
	m.SetValue("webhookUrl", "")
	if m.GetValue("isAlertable") != false {
		t.Fatal("expected isAlertable to be cleared")
	}
}
