// Package store opens the legacy and target SQL databases behind a dialect so
// the same queries run on PostgreSQL and SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/store/connector"
	"github.com/loykin/woodlandmigrate/internal/store/postgresql"
	"github.com/loykin/woodlandmigrate/internal/store/sqlite"
)

// Config selects a driver and its connection string.
type Config struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// DB is a pooled connection paired with its dialect.
type DB struct {
	*sql.DB
	Dialect connector.Dialect
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DialectFor returns the dialect registered for driver.
func DialectFor(driver string) (connector.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case constants.DriverPostgresql, "postgres", "pgx":
		return postgresql.NewDialect(), nil
	case constants.DriverSqlite, "sqlite3":
		return sqlite.NewDialect(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", driver)
	}
}

// Open connects to the database described by cfg.
func Open(cfg Config) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s dsn is empty", dialect.DriverName())
	}
	logger := common.GetLogger().WithStore(dialect.DriverName())
	logger.Debug("connecting", "dsn", cfg.DSN)

	db, err := dialect.Connect(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		return nil, err
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Wrap pairs an existing connection with a dialect.
func Wrap(db *sql.DB, dialect connector.Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// Rebind rewrites '?' placeholders into the dialect's placeholder style.
func (d *DB) Rebind(query string) string {
	return Rebind(d.Dialect, query)
}

// Rebind rewrites '?' placeholders into the dialect's placeholder style.
// Question marks inside single-quoted literals are left alone.
func Rebind(dialect connector.Dialect, query string) string {
	if dialect.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteString(dialect.Placeholder(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Classify reports the dialect's classification of err.
func (d *DB) Classify(err error) connector.ErrorClass {
	return d.Dialect.Classify(err)
}

// InTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
