// Package connector defines the contract each SQL backend implements so the
// legacy reader and the target writer can share queries across drivers.
package connector

import (
	"database/sql"
	"time"
)

// ErrorClass is the coarse classification of a driver error.
type ErrorClass int

const (
	// ClassUnknown errors are treated as infrastructure failures by callers.
	ClassUnknown ErrorClass = iota
	// ClassConstraint errors are constraint violations caused by the data itself.
	ClassConstraint
	// ClassTransient errors are worth retrying (busy, deadlock, dropped connection).
	ClassTransient
)

func (c ErrorClass) String() string {
	switch c {
	case ClassConstraint:
		return "constraint"
	case ClassTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ColumnTypes names the driver-specific column types used by the target schema.
type ColumnTypes struct {
	BigInt    string
	Bool      string
	Timestamp string
}

// Dialect implements the driver-specific parts of SQL access.
type Dialect interface {
	// DriverName returns the driver name for logging
	DriverName() string
	// Placeholder returns the bind placeholder for a 1-based argument index
	Placeholder(index int) string
	// Connect opens and pings a pooled connection
	Connect(dsn string) (*sql.DB, error)
	Types() ColumnTypes
	ConvertTimeToStorage(t time.Time) interface{}
	ConvertTimeFromStorage(val interface{}) time.Time
	Classify(err error) ErrorClass
}
