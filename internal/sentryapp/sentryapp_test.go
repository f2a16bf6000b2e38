package sentryapp

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"devsettings/internal/permissions"
)

func TestNormalizeEvents(t *testing.T) {
	got := NormalizeEvents([]string{"issue.created", "error", "comment.updated"})
	if diff := cmp.Diff([]string{"issue", "error", "comment"}, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	empty := []string{}
	if got := NormalizeEvents(empty); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My App":            "my-app",
		"  Foo -- Bar!!  ":  "foo-bar",
		"Jira (Internal) 2": "jira-internal-2",
		"!!!":               "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestSetAvatarReplacesSameColor(t *testing.T) {
	id := "abc"
	app := &SentryApp{Avatars: []Avatar{
		{AvatarType: "default", Color: true},
		{AvatarType: "default", Color: false},
	}}
	app.SetAvatar(Avatar{AvatarType: "upload", AvatarUUID: &id, Color: true})

	if len(app.Avatars) != 2 {
		t.Fatalf("expected 2 avatars, got %d", len(app.Avatars))
	}
	if got := app.Avatar(true); got.AvatarType != "upload" {
		t.Fatalf("expected uploaded color avatar, got %+v", got)
	}
	if got := app.Avatar(false); got.AvatarType != "default" {
		t.Fatalf("expected default simple avatar, got %+v", got)
	}

	var none *SentryApp
	if got := none.Avatar(true); got.AvatarType != "default" || !got.Color {
		t.Fatalf("expected default avatar for nil app, got %+v", got)
	}
}

func TestValidate_ScopesExceedRequester(t *testing.T) {
	app := &SentryApp{
		Name:       "App",
		Status:     StatusUnpublished,
		WebhookURL: "https://example.com/hook",
		Scopes:     []string{"project:read", "member:admin", "bogus:scope"},
	}
	err := Validate(app, []string{"project:read"}, permissions.Default)
	if err == nil {
		t.Fatal("expected validation error")
	}
	want := map[string][]string{
		"scopes": {
			ScopeExceedsMessage("member:admin"),
			"bogus:scope is not a valid scope.",
		},
	}
	if diff := cmp.Diff(want, FieldErrors(err)); diff != "" {
		t.Fatalf("field errors (-want +got):\n%s", diff)
	}
}

func TestValidate_EventsAndWebhook(t *testing.T) {
	app := &SentryApp{
		Name:        "App",
		Status:      StatusInternal,
		IsAlertable: true,
		Events:      []string{"issue", "deploy"},
	}
	got := FieldErrors(Validate(app, nil, permissions.Default))
	want := map[string][]string{
		"events": {
			"issue webhooks require the event:read permission.",
			"deploy is not a valid event.",
		},
		"webhookUrl": {
			"webhookUrl required if alertable is enabled.",
			"webhookUrl required to subscribe to events.",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("field errors (-want +got):\n%s", diff)
	}
}

func TestValidate_OK(t *testing.T) {
	app := &SentryApp{
		Name:        "App",
		Status:      StatusUnpublished,
		WebhookURL:  "https://example.com/hook",
		RedirectURL: "https://example.com/setup",
		Scopes:      []string{"event:read"},
		Events:      []string{"issue"},
	}
	if err := Validate(app, []string{"event:read", "project:read"}, permissions.Default); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidate_BadURLs(t *testing.T) {
	app := &SentryApp{Name: "x", Status: StatusInternal, WebhookURL: "ftp://nope", RedirectURL: "not a url"}
	got := FieldErrors(Validate(app, nil, permissions.Default))
	if len(got["webhookUrl"]) != 1 || len(got["redirectUrl"]) != 1 {
		t.Fatalf("expected url errors, got %v", got)
	}
}

func TestOwnsUpload(t *testing.T) {
	own := "img-1"
	app := &SentryApp{Avatars: []Avatar{
		{AvatarType: "upload", AvatarUUID: &own, Color: true},
		{AvatarType: "default", Color: false},
	}}
	if !app.OwnsUpload("img-1") {
		t.Fatal("expected own upload")
	}
	if app.OwnsUpload("img-2") || app.OwnsUpload("") {
		t.Fatal("unexpected ownership of a foreign id")
	}
	if ids := app.UploadIDs(); len(ids) != 1 || ids[0] != own {
		t.Fatalf("unexpected upload ids %v", ids)
	}
}
