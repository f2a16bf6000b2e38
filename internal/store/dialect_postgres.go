package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect talks to PostgreSQL through pgx's database/sql driver.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &params{marker: "$"}
}

func (d *PostgresDialect) NowExpr() string    { return "NOW()" }
func (d *PostgresDialect) NeedsBoolFix() bool { return false }

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) OlderThanExpr(col string, pb ParamBuilder, days int) string {
	return fmt.Sprintf("%s < now() - make_interval(days => %s)", col, pb.Add(days))
}

// MapError recognizes unique_violation (SQLSTATE 23505).
func (d *PostgresDialect) MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    organization  TEXT NOT NULL,
    roles         TEXT NOT NULL DEFAULT '[]',
    scopes        TEXT NOT NULL DEFAULT '[]',
    active        BOOLEAN DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW()
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
    is_alertable   BOOLEAN NOT NULL DEFAULT false,
    verify_install BOOLEAN NOT NULL DEFAULT true,
    schema         TEXT NOT NULL DEFAULT '{}',
    avatars        TEXT NOT NULL DEFAULT '[]',
    client_id      TEXT NOT NULL,
    client_secret  TEXT NOT NULL,
    created_at     TIMESTAMPTZ DEFAULT NOW(),
    updated_at     TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sentry_apps_org ON _sentry_apps(organization);

CREATE TABLE IF NOT EXISTS _sentry_app_tokens (
    token      TEXT PRIMARY KEY,
    app_uuid   TEXT NOT NULL REFERENCES _sentry_apps(uuid) ON DELETE CASCADE,
    scopes     TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sentry_app_tokens_app ON _sentry_app_tokens(app_uuid);

CREATE TABLE IF NOT EXISTS _audit_events (
    id         TEXT PRIMARY KEY,
    action     TEXT NOT NULL,
    app_slug   TEXT NOT NULL DEFAULT '',
    user_id    TEXT NOT NULL DEFAULT '',
    metadata   TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON _audit_events(created_at);
`
