package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the engine's error taxonomy.
type ErrorKind string

const (
	KindSourceUnavailable  ErrorKind = "source_unavailable"
	KindDataIntegrity      ErrorKind = "data_integrity"
	KindWriteFailed        ErrorKind = "write_failed"
	KindBlobTransient      ErrorKind = "blob_transient"
	KindFatalConfiguration ErrorKind = "fatal_configuration"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrSourceUnavailable       = &Error{Kind: KindSourceUnavailable}
	ErrDataIntegrity           = &Error{Kind: KindDataIntegrity}
	ErrWriteFailed             = &Error{Kind: KindWriteFailed}
	ErrBlobTransient           = &Error{Kind: KindBlobTransient}
	ErrFatalConfigurationError = &Error{Kind: KindFatalConfiguration}
)

// Error carries the kind, the legacy owner id it concerns (0 when not unit
// scoped), the failing operation and the cause.
type Error struct {
	Kind     ErrorKind
	LegacyID int64
	Op       string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.LegacyID != 0 {
		msg = fmt.Sprintf("%s (legacy id %d)", msg, e.LegacyID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the error kind is retried at unit level.
func (e *Error) Retryable() bool {
	return e.Kind == KindWriteFailed || e.Kind == KindBlobTransient
}

// SourceUnavailable wraps a V1 read failure.
func SourceUnavailable(op string, err error) error {
	return &Error{Kind: KindSourceUnavailable, Op: op, Err: err}
}

// DataIntegrity reports a record that cannot be validly mapped or violates a target constraint.
func DataIntegrity(legacyID int64, op string, err error) error {
	return &Error{Kind: KindDataIntegrity, LegacyID: legacyID, Op: op, Err: err}
}

// DataIntegrityf is DataIntegrity with a formatted cause.
func DataIntegrityf(legacyID int64, format string, args ...any) error {
	return DataIntegrity(legacyID, "map", fmt.Errorf(format, args...))
}

// WriteFailed wraps a transient target store failure.
func WriteFailed(legacyID int64, op string, err error) error {
	return &Error{Kind: KindWriteFailed, LegacyID: legacyID, Op: op, Err: err}
}

// BlobTransient wraps a transient blob store failure.
func BlobTransient(legacyID int64, op string, err error) error {
	return &Error{Kind: KindBlobTransient, LegacyID: legacyID, Op: op, Err: err}
}

// FatalConfiguration reports missing or invalid connection configuration.
func FatalConfiguration(format string, args ...any) error {
	return &Error{Kind: KindFatalConfiguration, Op: "config", Err: fmt.Errorf(format, args...)}
}

// KindOf returns the taxonomy kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable taxonomy error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
