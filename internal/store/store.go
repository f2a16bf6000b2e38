package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
	_ "modernc.org/sqlite"             // database/sql driver "sqlite"

	"devsettings/internal/config"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// Querier lets the row helpers run against *sql.DB or inside a *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Row is a scanned result row keyed by column name.
type Row map[string]any

// Store is the integration registry database.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
}

// New opens the configured database and checks it answers.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}
	dialect := NewDialect(cfg.Driver)

	if cfg.IsSQLite() && cfg.Name != ":memory:" && cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if err := tune(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return &Store{DB: db, Dialect: dialect}, nil
}

func tune(ctx context.Context, db *sql.DB, cfg config.DatabaseConfig) error {
	if !cfg.IsSQLite() {
		if cfg.PoolSize > 0 {
			db.SetMaxOpenConns(cfg.PoolSize)
		}
		return nil
	}
	// sqlite allows one writer; a single connection keeps the pragmas in effect.
	db.SetMaxOpenConns(1)
	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.DB.Close()
}

// BeginTx starts a transaction with default options.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.DB.BeginTx(ctx, nil)
}

// MapError translates driver errors into ErrUniqueViolation where the dialect
// recognizes them.
func (s *Store) MapError(err error) error {
	if err == nil {
		return nil
	}
	return s.Dialect.MapError(err)
}

// QueryRows runs a query and scans every row into a Row.
func QueryRows(ctx context.Context, q Querier, query string, args ...any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []Row
	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// QueryOne is QueryRows for a single row. An empty result is ErrNotFound.
func QueryOne(ctx context.Context, q Querier, query string, args ...any) (Row, error) {
	rows, err := QueryRows(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec runs a statement and reports how many rows it touched.
func Exec(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	return res.RowsAffected()
}

func scanRow(rows *sql.Rows, cols []string) (Row, error) {
	dest := make([]any, len(cols))
	vals := make([]any, len(cols))
	for i := range dest {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = columnValue(vals[i])
	}
	return row, nil
}

// sqlite hands timestamps back as text in one of these layouts.
var timeLayouts = []string{"2006-01-02 15:04:05", time.RFC3339Nano}

func columnValue(v any) any {
	var text string
	switch val := v.(type) {
	case []byte:
		text = string(val)
	case string:
		text = val
	default:
		return v
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	return text
}

// fixBools converts the 0/1 integers sqlite stores for BOOLEAN columns.
func (s *Store) fixBools(row Row, cols ...string) Row {
	if !s.Dialect.NeedsBoolFix() {
		return row
	}
	for _, col := range cols {
		if n, ok := row[col].(int64); ok {
			row[col] = n != 0
		}
	}
	return row
}
