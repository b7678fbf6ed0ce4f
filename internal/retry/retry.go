package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loykin/woodlandmigrate/internal/common"
	"github.com/loykin/woodlandmigrate/internal/constants"
	"github.com/loykin/woodlandmigrate/internal/domain"
)

// Config holds the backoff policy for retried operations
type Config struct {
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`       // Retries after the first attempt
	InitialDelay    time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`   // Delay before the first retry
	MaxDelay        time.Duration `mapstructure:"max_delay" yaml:"max_delay"`           // Cap for any single delay
	BackoffFactor   float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"` // Multiplier for exponential backoff
	RetryableErrors []string      `mapstructure:"-" yaml:"-"`                           // Error substrings that trigger retries

	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error, delay time.Duration) `mapstructure:"-" yaml:"-"`
}

// DefaultRetryableErrors are driver error fragments treated as transient when
// the error carries no taxonomy kind.
var DefaultRetryableErrors = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"deadlock",
	"lock wait timeout",
	"database is locked",
	"connection lost",
	"broken pipe",
	"too many connections",
}

// DefaultRetryConfig returns the unit retry policy: 3 retries, 200ms doubling to at most 5s
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:      constants.DefaultMaxRetries,
		InitialDelay:    constants.DefaultInitialDelay,
		MaxDelay:        constants.DefaultMaxDelay,
		BackoffFactor:   constants.DefaultBackoffFactor,
		RetryableErrors: append([]string(nil), DefaultRetryableErrors...),
	}
}

// Normalize fills zero fields with defaults. Negative retries become zero.
func (rc *Config) Normalize() *Config {
	out := *rc
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = constants.DefaultInitialDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = constants.DefaultMaxDelay
	}
	if out.MaxDelay < out.InitialDelay {
		out.MaxDelay = out.InitialDelay
	}
	if out.BackoffFactor < 1 {
		out.BackoffFactor = constants.DefaultBackoffFactor
	}
	if out.RetryableErrors == nil {
		out.RetryableErrors = append([]string(nil), DefaultRetryableErrors...)
	}
	return &out
}

// IsRetryable checks if an error should trigger a retry. Taxonomy errors decide
// by kind; anything else falls back to substring matching.
func (rc *Config) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check for context cancellation - don't retry these
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if kind := domain.KindOf(err); kind != "" {
		return domain.IsRetryable(err)
	}

	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range rc.RetryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}

	return false
}

// Delay calculates the wait before retry number attempt using exponential backoff
func (rc *Config) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}

	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt-1)))
	if delay > rc.MaxDelay || delay <= 0 {
		delay = rc.MaxDelay
	}
	return delay
}

// Operation is one attempt of a retried operation; attempt starts at 1.
type Operation func(attempt int) error

// Do executes op until it succeeds, fails with a non-retryable error, or
// exhausts MaxRetries. The last error is returned wrapped.
func Do(ctx context.Context, config *Config, op Operation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	logger := common.GetLogger().WithComponent("retry")

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op(attempt + 1)
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry",
					"attempt", attempt+1,
					"total_attempts", config.MaxRetries+1)
			}
			return nil
		}

		lastErr = err

		// Don't retry on the last attempt
		if attempt == config.MaxRetries {
			break
		}

		if !config.IsRetryable(err) {
			logger.Debug("operation failed with non-retryable error",
				"error", err,
				"attempt", attempt+1)
			return err
		}

		delay := config.Delay(attempt + 1)
		logger.Warn("operation failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", config.MaxRetries+1,
			"retry_delay", delay)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, delay)
		}

		// Wait before retry, but respect context cancellation
		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	if !config.IsRetryable(lastErr) {
		return lastErr
	}

	logger.Error("operation failed after all retry attempts",
		"error", lastErr,
		"attempts", config.MaxRetries+1)

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

// WithRetry executes an operation that does not care about the attempt number
func WithRetry(ctx context.Context, config *Config, operation func() error) error {
	return Do(ctx, config, func(int) error { return operation() })
}

// RetryableQuery represents a database query that can be retried
type RetryableQuery func() (*sql.Rows, error)

// WithRetryQuery executes a database query with retry logic
func WithRetryQuery(ctx context.Context, config *Config, query RetryableQuery) (*sql.Rows, error) {
	var rows *sql.Rows
	err := WithRetry(ctx, config, func() error {
		var err error
		rows, err = query()
		return err
	})

	return rows, err
}

// RetryableExec represents a database exec operation that can be retried
type RetryableExec func() (sql.Result, error)

// WithRetryExec executes a database exec with retry logic
func WithRetryExec(ctx context.Context, config *Config, exec RetryableExec) (sql.Result, error) {
	var result sql.Result
	err := WithRetry(ctx, config, func() error {
		var err error
		result, err = exec()
		return err
	})

	return result, err
}
