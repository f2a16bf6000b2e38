package store

import "strconv"

// Dialect hides the SQL differences between postgres and sqlite.
type Dialect interface {
	// DriverName is the database/sql driver to open ("pgx" or "sqlite").
	DriverName() string

	// Placeholder renders the 1-based bind parameter n.
	Placeholder(n int) string

	NewParamBuilder() ParamBuilder

	// NowExpr is the SQL for the current timestamp.
	NowExpr() string

	// SystemTablesSQL creates the users, registrations, tokens and audit tables.
	SystemTablesSQL() string

	// OlderThanExpr matches rows whose col is more than days old.
	OlderThanExpr(col string, pb ParamBuilder, days int) string

	MapError(err error) error

	// NeedsBoolFix is true when BOOLEAN columns scan as integers.
	NeedsBoolFix() bool
}

// ParamBuilder collects bind values while a statement is assembled.
type ParamBuilder interface {
	// Add records v and returns its placeholder.
	Add(v any) string
	Params() []any
}

// NewDialect returns the sqlite dialect for "sqlite" and postgres otherwise.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

// params numbers placeholders as marker followed by position, "$1" or "?1".
type params struct {
	marker string
	values []any
}

func (p *params) Add(v any) string {
	p.values = append(p.values, v)
	return p.marker + strconv.Itoa(len(p.values))
}

func (p *params) Params() []any { return p.values }
