package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteDialect stores booleans as integers and timestamps as text.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(n int) string {
	return "?" + strconv.Itoa(n)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &params{marker: "?"}
}

func (d *SQLiteDialect) NowExpr() string    { return "datetime('now')" }
func (d *SQLiteDialect) NeedsBoolFix() bool { return true }

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) OlderThanExpr(col string, pb ParamBuilder, days int) string {
	return fmt.Sprintf("%s < datetime('now', %s)", col, pb.Add(fmt.Sprintf("-%d days", days)))
}

func (d *SQLiteDialect) MapError(err error) error {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) && sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    organization  TEXT NOT NULL,
    roles         TEXT NOT NULL DEFAULT '[]',
    scopes        TEXT NOT NULL DEFAULT '[]',
    active        INTEGER DEFAULT 1,
    created_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _sentry_apps (
    uuid           TEXT PRIMARY KEY,
    slug           TEXT NOT NULL UNIQUE,
    name           TEXT NOT NULL,
    author         TEXT NOT NULL DEFAULT '',
    overview       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    organization   TEXT NOT NULL,
    scopes         TEXT NOT NULL DEFAULT '[]',
    events         TEXT NOT NULL DEFAULT '[]',
    webhook_url    TEXT NOT NULL DEFAULT '',
    redirect_url   TEXT NOT NULL DEFAULT '',
    is_alertable   INTEGER NOT NULL DEFAULT 0,
    verify_install INTEGER NOT NULL DEFAULT 1,
    schema         TEXT NOT NULL DEFAULT '{}',
    avatars        TEXT NOT NULL DEFAULT '[]',
    client_id      TEXT NOT NULL,
    client_secret  TEXT NOT NULL,
    created_at     TEXT DEFAULT (datetime('now')),
    updated_at     TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_sentry_apps_org ON _sentry_apps(organization);

CREATE TABLE IF NOT EXISTS _sentry_app_tokens (
    token      TEXT PRIMARY KEY,
    app_uuid   TEXT NOT NULL REFERENCES _sentry_apps(uuid) ON DELETE CASCADE,
    scopes     TEXT NOT NULL DEFAULT '[]',
    created_at TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_sentry_app_tokens_app ON _sentry_app_tokens(app_uuid);

CREATE TABLE IF NOT EXISTS _audit_events (
    id         TEXT PRIMARY KEY,
    action     TEXT NOT NULL,
    app_slug   TEXT NOT NULL DEFAULT '',
    user_id    TEXT NOT NULL DEFAULT '',
    metadata   TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON _audit_events(created_at);
`
