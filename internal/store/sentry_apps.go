package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"devsettings/internal/sentryapp"
)

const appColumns = `uuid, slug, name, author, overview, status, organization, scopes, events,
webhook_url, redirect_url, is_alertable, verify_install, schema, avatars, client_id, client_secret, created_at`

var appBoolColumns = []string{"is_alertable", "verify_install"}

// ListApps returns the organization's integrations ordered by name.
func ListApps(ctx context.Context, s *Store, org string) ([]*sentryapp.SentryApp, error) {
	q := fmt.Sprintf("SELECT %s FROM _sentry_apps WHERE organization = %s ORDER BY name",
		appColumns, s.Dialect.Placeholder(1))
	rows, err := QueryRows(ctx, s.DB, q, org)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	apps := make([]*sentryapp.SentryApp, 0, len(rows))
	for _, row := range rows {
		app, err := appFromRow(s.fixBools(row, appBoolColumns...))
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// GetApp returns the integration with the given slug, or ErrNotFound.
func GetApp(ctx context.Context, s *Store, slug string) (*sentryapp.SentryApp, error) {
	q := fmt.Sprintf("SELECT %s FROM _sentry_apps WHERE slug = %s", appColumns, s.Dialect.Placeholder(1))
	row, err := QueryOne(ctx, s.DB, q, slug)
	if err != nil {
		return nil, fmt.Errorf("get app %s: %w", slug, err)
	}
	return appFromRow(s.fixBools(row, appBoolColumns...))
}

// CreateApp inserts app. UUID, slug and credentials must already be set.
func CreateApp(ctx context.Context, s *Store, app *sentryapp.SentryApp) error {
	pb := s.Dialect.NewParamBuilder()
	q := fmt.Sprintf(`INSERT INTO _sentry_apps (uuid, slug, name, author, overview, status, organization, scopes, events,
webhook_url, redirect_url, is_alertable, verify_install, schema, avatars, client_id, client_secret)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(app.UUID), pb.Add(app.Slug), pb.Add(app.Name), pb.Add(app.Author), pb.Add(app.Overview),
		pb.Add(app.Status), pb.Add(app.Organization), pb.Add(encodeJSON(app.Scopes, "[]")),
		pb.Add(encodeJSON(app.Events, "[]")), pb.Add(app.WebhookURL), pb.Add(app.RedirectURL),
		pb.Add(app.IsAlertable), pb.Add(app.VerifyInstall), pb.Add(encodeJSON(app.Schema, "{}")),
		pb.Add(encodeJSON(app.Avatars, "[]")), pb.Add(app.ClientID), pb.Add(app.ClientSecret))
	if _, err := Exec(ctx, s.DB, q, pb.Params()...); err != nil {
		return s.MapError(err)
	}
	return nil
}

// UpdateApp writes the mutable columns of app, keyed by UUID.
func UpdateApp(ctx context.Context, s *Store, app *sentryapp.SentryApp) error {
	pb := s.Dialect.NewParamBuilder()
	sets := []string{
		"slug = " + pb.Add(app.Slug),
		"name = " + pb.Add(app.Name),
		"author = " + pb.Add(app.Author),
		"overview = " + pb.Add(app.Overview),
		"status = " + pb.Add(app.Status),
		"scopes = " + pb.Add(encodeJSON(app.Scopes, "[]")),
		"events = " + pb.Add(encodeJSON(app.Events, "[]")),
		"webhook_url = " + pb.Add(app.WebhookURL),
		"redirect_url = " + pb.Add(app.RedirectURL),
		"is_alertable = " + pb.Add(app.IsAlertable),
		"verify_install = " + pb.Add(app.VerifyInstall),
		"schema = " + pb.Add(encodeJSON(app.Schema, "{}")),
		"avatars = " + pb.Add(encodeJSON(app.Avatars, "[]")),
		"updated_at = " + s.Dialect.NowExpr(),
	}
	q := fmt.Sprintf("UPDATE _sentry_apps SET %s WHERE uuid = %s", strings.Join(sets, ", "), pb.Add(app.UUID))
	n, err := Exec(ctx, s.DB, q, pb.Params()...)
	if err != nil {
		return s.MapError(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteApp removes an integration and, through the foreign key, its tokens.
func DeleteApp(ctx context.Context, s *Store, appUUID string) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ph := s.Dialect.Placeholder(1)
	if _, err := Exec(ctx, tx, "DELETE FROM _sentry_app_tokens WHERE app_uuid = "+ph, appUUID); err != nil {
		return err
	}
	n, err := Exec(ctx, tx, "DELETE FROM _sentry_apps WHERE uuid = "+ph, appUUID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListTokens returns an internal integration's tokens, oldest first.
func ListTokens(ctx context.Context, s *Store, appUUID string) ([]*sentryapp.APIToken, error) {
	q := "SELECT token, scopes, created_at FROM _sentry_app_tokens WHERE app_uuid = " +
		s.Dialect.Placeholder(1) + " ORDER BY created_at, token"
	rows, err := QueryRows(ctx, s.DB, q, appUUID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	tokens := make([]*sentryapp.APIToken, 0, len(rows))
	for _, row := range rows {
		tok := &sentryapp.APIToken{}
		tok.Token, _ = row["token"].(string)
		tok.DateCreated = toTime(row["created_at"])
		if err := decodeJSON(row["scopes"], &tok.Scopes); err != nil {
			return nil, fmt.Errorf("decode token scopes: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// AddToken stores a new token for an integration.
func AddToken(ctx context.Context, s *Store, appUUID string, tok *sentryapp.APIToken) error {
	pb := s.Dialect.NewParamBuilder()
	q := fmt.Sprintf("INSERT INTO _sentry_app_tokens (token, app_uuid, scopes) VALUES (%s, %s, %s)",
		pb.Add(tok.Token), pb.Add(appUUID), pb.Add(encodeJSON(tok.Scopes, "[]")))
	if _, err := Exec(ctx, s.DB, q, pb.Params()...); err != nil {
		return s.MapError(err)
	}
	return nil
}

// RemoveToken revokes a token. Tokens of other integrations are not touched.
func RemoveToken(ctx context.Context, s *Store, appUUID, token string) error {
	pb := s.Dialect.NewParamBuilder()
	q := fmt.Sprintf("DELETE FROM _sentry_app_tokens WHERE app_uuid = %s AND token = %s",
		pb.Add(appUUID), pb.Add(token))
	n, err := Exec(ctx, s.DB, q, pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func appFromRow(row Row) (*sentryapp.SentryApp, error) {
	app := &sentryapp.SentryApp{}
	app.UUID, _ = row["uuid"].(string)
	app.Slug, _ = row["slug"].(string)
	app.Name, _ = row["name"].(string)
	app.Author, _ = row["author"].(string)
	app.Overview, _ = row["overview"].(string)
	app.Status, _ = row["status"].(string)
	app.Organization, _ = row["organization"].(string)
	app.WebhookURL, _ = row["webhook_url"].(string)
	app.RedirectURL, _ = row["redirect_url"].(string)
	app.IsAlertable, _ = row["is_alertable"].(bool)
	app.VerifyInstall, _ = row["verify_install"].(bool)
	app.ClientID, _ = row["client_id"].(string)
	app.ClientSecret, _ = row["client_secret"].(string)
	app.DateCreated = toTime(row["created_at"])

	app.Scopes = []string{}
	app.Events = []string{}
	app.Avatars = []sentryapp.Avatar{}
	if err := decodeJSON(row["scopes"], &app.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	if err := decodeJSON(row["events"], &app.Events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if err := decodeJSON(row["schema"], &app.Schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := decodeJSON(row["avatars"], &app.Avatars); err != nil {
		return nil, fmt.Errorf("decode avatars: %w", err)
	}
	return app, nil
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case sql.NullTime:
		return t.Time
	}
	return time.Time{}
}
