package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/store/connector"
)

// Dialect implements SQL dialect for SQLite
type Dialect struct{}

// NewDialect creates a new SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

var _ connector.Dialect = (*Dialect)(nil)

// DriverName returns the driver name for logging
func (s *Dialect) DriverName() string {
	return constants.DriverSqlite
}

// Placeholder returns SQLite-style placeholders (?)
func (s *Dialect) Placeholder(int) string {
	return "?"
}

// Types returns SQLite column types
func (s *Dialect) Types() connector.ColumnTypes {
	return connector.ColumnTypes{BigInt: "INTEGER", Bool: "INTEGER", Timestamp: "TEXT"}
}

// ConvertTimeToStorage converts time to SQLite storage format (RFC3339Nano string)
func (s *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC().Format(time.RFC3339Nano)
}

// ConvertTimeFromStorage parses SQLite text timestamps
func (s *Dialect) ConvertTimeFromStorage(val interface{}) time.Time {
	switch t := val.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	case []byte:
		if parsed, err := time.Parse(time.RFC3339Nano, string(t)); err == nil {
			return parsed.UTC()
		}
	case time.Time:
		return t.UTC()
	}
	return time.Time{}
}

// Connect establishes a connection to SQLite with connection pooling
func (s *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// SQLite-specific configuration (SQLite doesn't support multiple writers)
	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
	db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)

	return db, nil
}

// Classify maps SQLite result codes onto connector error classes.
func (s *Dialect) Classify(err error) connector.ErrorClass {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return connector.ClassUnknown
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return connector.ClassConstraint
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR:
			return connector.ClassTransient
		}
		return connector.ClassUnknown
	}
	if strings.Contains(strings.ToLower(err.Error()), "database is locked") {
		return connector.ClassTransient
	}
	return connector.ClassUnknown
}

// PathDSN builds a file DSN with the busy timeout and foreign keys enabled.
func PathDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, constants.DefaultSQLiteBusyTimeoutMS)
}
