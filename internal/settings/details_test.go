package settings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"devsettings/internal/form"
	"devsettings/internal/permissions"
	"devsettings/internal/sentryapp"
)

type apiError struct {
	status int
	body   map[string]any
}

func (e *apiError) Error() string        { return fmt.Sprintf("api error %d", e.status) }
func (e *apiError) StatusCode() int      { return e.status }
func (e *apiError) Body() map[string]any { return e.body }

type fakeAPI struct {
	app       *sentryapp.SentryApp
	tokens    []*sentryapp.APIToken
	tokensErr error
	submitErr error
	submitted form.Fields
	method    string
	endpoint  string
	removed   []string
	avatars   []sentryapp.Avatar
}

func (f *fakeAPI) Submit(_ context.Context, method, endpoint string, data form.Fields) (map[string]any, error) {
	f.method, f.endpoint, f.submitted = method, endpoint, data
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	out := data.Map()
	if _, ok := out["slug"]; !ok {
		out["slug"] = sentryapp.Slugify(fmt.Sprint(out["name"]))
	}
	return out, nil
}

func (f *fakeAPI) GetApp(_ context.Context, slug string) (*sentryapp.SentryApp, error) {
	if f.app == nil || f.app.Slug != slug {
		return nil, &apiError{status: 404, body: map[string]any{"detail": "not found"}}
	}
	return f.app, nil
}

func (f *fakeAPI) ListTokens(context.Context, string) ([]*sentryapp.APIToken, error) {
	return f.tokens, f.tokensErr
}

func (f *fakeAPI) AddToken(_ context.Context, slug string) (*sentryapp.APIToken, error) {
	return &sentryapp.APIToken{Token: fmt.Sprintf("tok-%d", len(f.tokens)+1), Scopes: f.app.Scopes}, nil
}

func (f *fakeAPI) RemoveToken(_ context.Context, _, token string) error {
	f.removed = append(f.removed, token)
	return nil
}

func (f *fakeAPI) SetAvatar(_ context.Context, _ string, av sentryapp.Avatar) (*sentryapp.SentryApp, error) {
	f.avatars = append(f.avatars, av)
	return f.app, nil
}

func internalApp() *sentryapp.SentryApp {
	return &sentryapp.SentryApp{
		Slug:          "my-app",
		Name:          "My App",
		Status:        sentryapp.StatusInternal,
		Scopes:        []string{"event:read", "project:read", "project:write"},
		Events:        []string{"issue.created", "error.created"},
		WebhookURL:    "https://example.com/hook",
		IsAlertable:   true,
		VerifyInstall: true,
		ClientSecret:  "s3cret",
		Avatars:       []sentryapp.Avatar{},
	}
}

func TestNewAppDefaults(t *testing.T) {
	for _, tc := range []struct {
		internal      bool
		title         string
		verifyInstall bool
	}{
		{internal: true, title: "Create Internal Integration", verifyInstall: false},
		{internal: false, title: "Create Public Integration", verifyInstall: true},
	} {
		d := New(&fakeAPI{}, permissions.Default, "acme", "", tc.internal)
		if err := d.Load(context.Background()); err != nil {
			t.Fatalf("load: %v", err)
		}
		if d.Title() != tc.title {
			t.Fatalf("expected %q, got %q", tc.title, d.Title())
		}
		if d.Method() != "POST" || d.Endpoint() != "/sentry-apps/" {
			t.Fatalf("unexpected target %s %s", d.Method(), d.Endpoint())
		}
		data := d.InitialData()
		if data["verifyInstall"] != tc.verifyInstall {
			t.Fatalf("internal=%v: expected verifyInstall %v, got %v", tc.internal, tc.verifyInstall, data["verifyInstall"])
		}
		if data["organization"] != "acme" || data["isAlertable"] != false || data["isInternal"] != tc.internal {
			t.Fatalf("unexpected defaults %v", data)
		}
		if data["Project--permission"] != permissions.NoAccess {
			t.Fatalf("expected no-access selector, got %v", data["Project--permission"])
		}
		if !d.ShowAuthInfo() {
			t.Fatal("expected auth info for a new app")
		}
	}
}

func TestLoadExistingInternalApp(t *testing.T) {
	api := &fakeAPI{app: internalApp(), tokens: []*sentryapp.APIToken{{Token: "tok-1"}}}
	d := New(api, permissions.Default, "acme", "my-app", false)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if d.Title() != "Edit Internal Integration" {
		t.Fatalf("unexpected title %q", d.Title())
	}
	if !d.IsInternal() {
		t.Fatal("status internal must win over the NewInternal flag")
	}
	if d.Method() != "PUT" || d.Endpoint() != "/sentry-apps/my-app/" {
		t.Fatalf("unexpected target %s %s", d.Method(), d.Endpoint())
	}
	if len(d.Tokens()) != 1 {
		t.Fatalf("expected 1 token, got %d", len(d.Tokens()))
	}

	data := d.InitialData()
	if data["verifyInstall"] != false {
		t.Fatal("verifyInstall must be forced off for internal apps")
	}
	if diff := cmp.Diff([]string{"issue", "error"}, data["events"]); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if data["Project--permission"] != permissions.Write || data["Event--permission"] != permissions.Read {
		t.Fatalf("unexpected selectors %v / %v", data["Project--permission"], data["Event--permission"])
	}
}

func TestLoadPublicAppTolerates403Tokens(t *testing.T) {
	app := internalApp()
	app.Status = sentryapp.StatusPublished
	app.VerifyInstall = false
	app.ClientSecret = sentryapp.MaskedSecret
	api := &fakeAPI{app: app, tokensErr: &apiError{status: 403}}

	d := New(api, permissions.Default, "acme", "my-app", false)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Title() != "Edit Public Integration" {
		t.Fatalf("unexpected title %q", d.Title())
	}
	if d.InitialData()["verifyInstall"] != false {
		t.Fatal("existing public app keeps its verifyInstall")
	}
	if d.ShowAuthInfo() {
		t.Fatal("masked secret must hide auth info")
	}
	if _, err := d.AddToken(context.Background()); !errors.Is(err, ErrNotInternal) {
		t.Fatalf("expected ErrNotInternal, got %v", err)
	}
}

func TestLoadFailsOnMissingApp(t *testing.T) {
	d := New(&fakeAPI{}, permissions.Default, "acme", "ghost", false)
	if err := d.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}

func TestClearingWebhookDisablesAlerts(t *testing.T) {
	d := New(&fakeAPI{app: internalApp()}, permissions.Default, "acme", "my-app", false)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Form().GetValue("isAlertable") != true {
		t.Fatal("expected alertable app")
	}
	d.OnFieldChange("webhookUrl", "")
	if d.Form().GetValue("isAlertable") != false {
		t.Fatal("expected isAlertable false after clearing webhook")
	}
}

func TestFieldChangeBeforeLoadIsIgnored(t *testing.T) {
	app := internalApp()
	d := New(&fakeAPI{app: app}, permissions.Default, "acme", "my-app", false)
	d.OnFieldChange("webhookUrl", "")
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := d.Form().GetValue("webhookUrl"); got != app.WebhookURL {
		t.Fatalf("edit made before Load must not be staged, got %v", got)
	}
	if d.Form().GetValue("isAlertable") != true {
		t.Fatal("expected isAlertable untouched")
	}
}

func TestPermissionChangeRollsUpScopes(t *testing.T) {
	api := &fakeAPI{}
	d := New(api, permissions.Default, "acme", "", true)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	d.OnFieldChange("name", "Fresh")
	d.OnFieldChange("Member--permission", permissions.Write)

	if diff := cmp.Diff([]string{"member:read", "member:write"}, d.Form().GetValue("scopes")); diff != "" {
		t.Fatalf("scopes mismatch (-want +got):\n%s", diff)
	}

	res, err := d.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, ok := api.submitted.Get("Member--permission"); ok {
		t.Fatal("permission selectors must not be submitted")
	}
	if res.Message != "Fresh successfully created." {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if res.RedirectURL != "/settings/acme/developer-settings/fresh/" {
		t.Fatalf("unexpected redirect %q", res.RedirectURL)
	}
	if d.Method() != "PUT" {
		t.Fatal("expected edits after create to PUT")
	}
}

func TestSubmitUpdateMessage(t *testing.T) {
	d := New(&fakeAPI{app: internalApp()}, permissions.Default, "acme", "my-app", false)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := d.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Message != "My App successfully saved." || res.RedirectURL != "/settings/acme/developer-settings/" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitRejectedRemapsScopes(t *testing.T) {
	msg := sentryapp.ScopeExceedsMessage("member:admin")
	api := &fakeAPI{submitErr: &apiError{status: 400, body: map[string]any{
		"scopes": []any{msg},
		"name":   []any{"This field is required."},
	}}}
	d := New(api, permissions.Default, "acme", "", true)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err := d.Submit(context.Background())
	var failure *SubmitFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *SubmitFailure, got %T: %v", err, err)
	}
	if failure.Message != "Unknown Error" {
		t.Fatalf("expected fallback message without detail, got %q", failure.Message)
	}
	if diff := cmp.Diff([]string{msg}, d.Form().FieldErrors("Member--permission")); diff != "" {
		t.Fatalf("member errors mismatch (-want +got):\n%s", diff)
	}
	if failure.FirstErrorField == "" {
		t.Fatal("expected a first error field")
	}
}

func TestHandleSubmitError(t *testing.T) {
	d := New(&fakeAPI{}, permissions.Default, "acme", "", false)

	got := d.HandleSubmitError(&apiError{status: 403, body: map[string]any{"detail": "Nope."}})
	if got.Message != "Nope." {
		t.Fatalf("expected detail, got %q", got.Message)
	}
	got = d.HandleSubmitError(&apiError{status: 500, body: map[string]any{"detail": "stack"}})
	if got.Message != "Unknown Error" {
		t.Fatalf("server errors must not leak detail, got %q", got.Message)
	}
	got = d.HandleSubmitError(errors.New("connection refused"))
	if got.Message != "Unknown Error" || got.FirstErrorField != "" {
		t.Fatalf("unexpected failure %+v", got)
	}
}

func TestTokensAndAvatar(t *testing.T) {
	api := &fakeAPI{app: internalApp(), tokens: []*sentryapp.APIToken{{Token: "tok-1"}}}
	d := New(api, permissions.Default, "acme", "my-app", false)
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	tok, err := d.AddToken(context.Background())
	if err != nil {
		t.Fatalf("add token: %v", err)
	}
	if len(d.Tokens()) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(d.Tokens()))
	}
	if err := d.RemoveToken(context.Background(), "tok-1"); err != nil {
		t.Fatalf("remove token: %v", err)
	}
	if len(d.Tokens()) != 1 || d.Tokens()[0].Token != tok.Token {
		t.Fatalf("unexpected tokens %+v", d.Tokens())
	}
	if diff := cmp.Diff([]string{"tok-1"}, api.removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}

	if err := d.SetAvatar(context.Background(), sentryapp.Avatar{AvatarType: "default", Color: true}); err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	if d.App().Avatar(true).AvatarType != "default" || len(api.avatars) != 1 {
		t.Fatalf("avatar not applied: %+v", d.App().Avatars)
	}
}
