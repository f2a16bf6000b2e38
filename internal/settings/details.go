// Package settings drives the integration details page: loading an existing
// registration, staging edits in a form model and submitting them.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"devsettings/internal/appform"
	"devsettings/internal/form"
	"devsettings/internal/logger"
	"devsettings/internal/metrics"
	"devsettings/internal/permissions"
	"devsettings/internal/sentryapp"
)

// ErrNotInternal is returned by token operations on public integrations.
var ErrNotInternal = errors.New("tokens are only available for internal integrations")

// API is the subset of the API client the details page needs.
type API interface {
	form.Submitter
	GetApp(ctx context.Context, slug string) (*sentryapp.SentryApp, error)
	ListTokens(ctx context.Context, slug string) ([]*sentryapp.APIToken, error)
	AddToken(ctx context.Context, slug string) (*sentryapp.APIToken, error)
	RemoveToken(ctx context.Context, slug, token string) error
	SetAvatar(ctx context.Context, slug string, av sentryapp.Avatar) (*sentryapp.SentryApp, error)
}

// Details is the state of one details page. A zero Slug means a new
// integration; NewInternal selects the internal flavor for it.
type Details struct {
	Org         string
	Slug        string
	NewInternal bool

	api     API
	catalog permissions.Catalog
	app     *sentryapp.SentryApp
	tokens  []*sentryapp.APIToken
	form    *form.Model
}

func New(api API, cat permissions.Catalog, org, slug string, newInternal bool) *Details {
	return &Details{Org: org, Slug: slug, NewInternal: newInternal, api: api, catalog: cat}
}

// Load fetches the app and its tokens when editing, then builds the form.
// Public integrations have no tokens; a 403 on the token list is expected.
func (d *Details) Load(ctx context.Context) error {
	if d.Slug != "" {
		var (
			app    *sentryapp.SentryApp
			tokens []*sentryapp.APIToken
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			app, err = d.api.GetApp(gctx, d.Slug)
			if err != nil {
				return fmt.Errorf("load app %s: %w", d.Slug, err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			tokens, err = d.api.ListTokens(gctx, d.Slug)
			var rerr form.ResponseError
			if errors.As(err, &rerr) && rerr.StatusCode() == http.StatusForbidden {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load tokens %s: %w", d.Slug, err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}
		d.app = app
		d.tokens = tokens
	}

	d.form = appform.NewModel(d.catalog, d.IsInternal())
	d.form.SetInitialData(d.InitialData())
	return nil
}

func (d *Details) App() *sentryapp.SentryApp { return d.app }

func (d *Details) Tokens() []*sentryapp.APIToken { return d.tokens }

// Form returns the form model; nil before Load.
func (d *Details) Form() *form.Model { return d.form }

// Title is e.g. "Create Internal Integration" or "Edit Public Integration".
func (d *Details) Title() string {
	action := "Create"
	if d.app != nil {
		action = "Edit"
	}
	kind := "Public"
	if d.IsInternal() {
		kind = "Internal"
	}
	return fmt.Sprintf("%s %s Integration", action, kind)
}

// IsInternal follows the loaded app's status, or NewInternal for new apps.
func (d *Details) IsInternal() bool {
	if d.app != nil {
		return d.app.IsInternal()
	}
	return d.NewInternal
}

// ShowAuthInfo is false when the API masked the client secret.
func (d *Details) ShowAuthInfo() bool {
	return !(d.app != nil && d.app.ClientSecret != "" && sentryapp.IsMasked(d.app.ClientSecret))
}

// Method is POST for a new app, PUT otherwise.
func (d *Details) Method() string {
	if d.app != nil {
		return http.MethodPut
	}
	return http.MethodPost
}

func (d *Details) Endpoint() string {
	if d.app != nil {
		return "/sentry-apps/" + d.app.Slug + "/"
	}
	return "/sentry-apps/"
}

// InitialData is the form's starting state: defaults, then the loaded app,
// then the forced verifyInstall and one selector per permission resource.
func (d *Details) InitialData() map[string]any {
	internal := d.IsInternal()
	data := map[string]any{
		"organization": d.Org,
		"isAlertable":  false,
		"isInternal":   internal,
		"schema":       map[string]any{},
		"scopes":       []string{},
		"events":       []string{},
	}

	scopes := []string{}
	verifyInstall := true
	if app := d.app; app != nil {
		data["slug"] = app.Slug
		data["name"] = app.Name
		data["author"] = app.Author
		data["overview"] = app.Overview
		data["status"] = app.Status
		data["webhookUrl"] = app.WebhookURL
		data["redirectUrl"] = app.RedirectURL
		data["isAlertable"] = app.IsAlertable
		data["clientId"] = app.ClientID
		data["clientSecret"] = app.ClientSecret
		data["events"] = sentryapp.NormalizeEvents(app.Events)
		if app.Schema != nil {
			data["schema"] = app.Schema
		}
		if app.Scopes != nil {
			scopes = append(scopes, app.Scopes...)
			data["scopes"] = scopes
		}
		verifyInstall = app.VerifyInstall
	}
	if internal {
		verifyInstall = false
	}
	data["verifyInstall"] = verifyInstall

	for res, choice := range d.catalog.Selections(scopes) {
		data[permissions.FieldKey(res)] = choice
	}
	return data
}

// OnFieldChange stages a field edit. Permission selector edits are rolled
// up into "scopes"; the form model applies the webhook reaction. Edits made
// before Load are ignored.
func (d *Details) OnFieldChange(key string, value any) {
	if d.form == nil {
		return
	}
	d.form.SetValue(key, value)
	if permissions.IsSyntheticKey(key) {
		appform.SyncScopes(d.form, d.catalog)
	}
}

// SubmitResult is a saved app plus what to show and where to go next.
type SubmitResult struct {
	App         *sentryapp.SentryApp
	Message     string
	RedirectURL string
}

// SubmitFailure is a rejected or failed submission. FirstErrorField names
// the input to focus, empty when no field was blamed.
type SubmitFailure struct {
	Message         string
	FirstErrorField string
	Err             error
}

func (f *SubmitFailure) Error() string { return f.Message + ": " + f.Err.Error() }

func (f *SubmitFailure) Unwrap() error { return f.Err }

// Submit sends the form. Failures are returned as *SubmitFailure.
func (d *Details) Submit(ctx context.Context) (*SubmitResult, error) {
	method := d.Method()
	resp, err := d.form.Submit(ctx, d.api, method, d.Endpoint())
	if err != nil {
		failure := d.HandleSubmitError(err)
		outcome := "failed"
		var rerr form.ResponseError
		if errors.As(err, &rerr) {
			outcome = "rejected"
		}
		metrics.Submissions.WithLabelValues(method, outcome).Inc()
		logger.From(ctx).Info("integration submit failed",
			zap.String("method", method), zap.String("first_error_field", failure.FirstErrorField), zap.Error(err))
		return nil, failure
	}
	metrics.Submissions.WithLabelValues(method, "success").Inc()

	saved, err := decodeApp(resp)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("/settings/%s/developer-settings/", d.Org)
	result := &SubmitResult{App: saved, RedirectURL: base}
	if d.app != nil {
		result.Message = fmt.Sprintf("%s successfully saved.", saved.Name)
	} else {
		result.Message = fmt.Sprintf("%s successfully created.", saved.Name)
		result.RedirectURL = base + saved.Slug + "/"
	}
	d.app = saved
	d.Slug = saved.Slug
	return result, nil
}

// HandleSubmitError turns a submit error into the message to display. Only
// client errors carry a usable detail.
func (d *Details) HandleSubmitError(err error) *SubmitFailure {
	failure := &SubmitFailure{Message: "Unknown Error", Err: err}
	var rerr form.ResponseError
	if errors.As(err, &rerr) && rerr.StatusCode() >= 400 && rerr.StatusCode() < 500 {
		if detail, ok := rerr.Body()["detail"].(string); ok && detail != "" {
			failure.Message = detail
		}
	}
	if d.form != nil {
		failure.FirstErrorField = d.form.FirstErrorField()
	}
	return failure
}

// AddToken mints a token for the loaded internal app.
func (d *Details) AddToken(ctx context.Context) (*sentryapp.APIToken, error) {
	if err := d.requireInternalApp(); err != nil {
		return nil, err
	}
	tok, err := d.api.AddToken(ctx, d.app.Slug)
	if err != nil {
		return nil, err
	}
	d.tokens = append(d.tokens, tok)
	return tok, nil
}

// RemoveToken revokes token and drops it from the list once the API agrees.
func (d *Details) RemoveToken(ctx context.Context, token string) error {
	if err := d.requireInternalApp(); err != nil {
		return err
	}
	if err := d.api.RemoveToken(ctx, d.app.Slug, token); err != nil {
		return err
	}
	kept := d.tokens[:0:0]
	for _, tok := range d.tokens {
		if tok.Token != token {
			kept = append(kept, tok)
		}
	}
	d.tokens = kept
	return nil
}

// SetAvatar saves an avatar and replaces the one of the same style locally.
func (d *Details) SetAvatar(ctx context.Context, av sentryapp.Avatar) error {
	if d.app == nil {
		return errors.New("avatars can only be set on a saved integration")
	}
	if _, err := d.api.SetAvatar(ctx, d.app.Slug, av); err != nil {
		return err
	}
	d.app.SetAvatar(av)
	return nil
}

func (d *Details) requireInternalApp() error {
	if d.app == nil || !d.app.IsInternal() {
		return ErrNotInternal
	}
	return nil
}

func decodeApp(resp map[string]any) (*sentryapp.SentryApp, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var app sentryapp.SentryApp
	if err := json.Unmarshal(raw, &app); err != nil {
		return nil, fmt.Errorf("decode app: %w", err)
	}
	return &app, nil
}
