package postgresql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/store/connector"
)

// transientCodes are SQLSTATEs worth retrying: serialization failure, deadlock,
// lock not available, admin/crash shutdown, cannot connect now, too many connections.
var transientCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
	"57P01": {},
	"57P02": {},
	"57P03": {},
	"53300": {},
}

// Dialect implements SQL dialect for PostgreSQL
type Dialect struct{}

// NewDialect creates a new PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{}
}

var _ connector.Dialect = (*Dialect)(nil)

// DriverName returns the driver name for logging
func (p *Dialect) DriverName() string {
	return constants.DriverPostgresql
}

// Placeholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// Types returns PostgreSQL column types
func (p *Dialect) Types() connector.ColumnTypes {
	return connector.ColumnTypes{BigInt: "BIGINT", Bool: "BOOLEAN", Timestamp: "TIMESTAMPTZ"}
}

// ConvertTimeToStorage converts time to PostgreSQL storage format (native time.Time)
func (p *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC()
}

// ConvertTimeFromStorage converts a scanned PostgreSQL timestamp to time.Time
func (p *Dialect) ConvertTimeFromStorage(val interface{}) time.Time {
	switch t := val.(type) {
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t != nil {
			return t.UTC()
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// Connect establishes a connection to PostgreSQL with connection pooling
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

// Classify maps pgx errors onto connector error classes using SQLSTATE codes.
func (p *Dialect) Classify(err error) connector.ErrorClass {
	if err == nil {
		return connector.ClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return connector.ClassUnknown
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "23") {
			return connector.ClassConstraint
		}
		if _, ok := transientCodes[pgErr.Code]; ok || strings.HasPrefix(pgErr.Code, "08") {
			return connector.ClassTransient
		}
		return connector.ClassUnknown
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return connector.ClassTransient
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) {
		return connector.ClassTransient
	}
	return connector.ClassUnknown
}

// BuildDSN assembles a pgx URL DSN from components.
func BuildDSN(host string, port int, user, password, dbname, sslmode string) string {
	if port == 0 {
		port = constants.DefaultPostgresPort
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = constants.DefaultPostgresSSLMode
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
}
