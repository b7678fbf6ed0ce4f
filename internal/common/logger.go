package common

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel maps a configuration string onto a LogLevel. Unknown values fall
// back to info and report ok=false.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch s {
	case "error":
		return LogLevelError, true
	case "warn", "warning":
		return LogLevelWarn, true
	case "info", "":
		return LogLevelInfo, true
	case "debug":
		return LogLevelDebug, true
	default:
		return LogLevelInfo, false
	}
}

// Logger provides a centralized logging interface for woodlandmigrate
type Logger struct {
	*slog.Logger
	level LogLevel
}

// NewLogger creates a new structured logger with the specified level
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stdout, level, "text")
}

// NewJSONLogger creates a structured logger with JSON output
func NewJSONLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stdout, level, "json")
}

// NewColorLogger creates a logger that colorizes output when writing to a terminal
func NewColorLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stdout, level, "color")
}

// NewLoggerWithWriter builds a logger for the given format ("text", "json" or "color")
// writing to w. Text and JSON output pass through the global masker.
func NewLoggerWithWriter(w io.Writer, level LogLevel, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level: level.ToSlogLevel(),
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = &maskingHandler{next: slog.NewJSONHandler(w, opts)}
	case "color", "colour":
		handler = NewColorHandler(w, opts)
	default:
		handler = &maskingHandler{next: slog.NewTextHandler(w, opts)}
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
	}
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
	}
}

// WithUnit returns a logger scoped to a single legacy owner unit
func (l *Logger) WithUnit(legacyOwnerID int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("legacy_owner_id", legacyOwnerID),
		level:  l.level,
	}
}

// WithStore returns a logger with store context
func (l *Logger) WithStore(storeType string) *Logger {
	return &Logger{
		Logger: l.Logger.With("store", storeType),
		level:  l.level,
	}
}

// WithBlob returns a logger with blob driver context
func (l *Logger) WithBlob(driver string) *Logger {
	return &Logger{
		Logger: l.Logger.With("blob", driver),
		level:  l.level,
	}
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewLogger(LogLevelInfo))
}

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	if logger == nil {
		return
	}
	defaultLogger.Store(logger)
}

// GetLogger returns the default logger
func GetLogger() *Logger {
	return defaultLogger.Load()
}

// LogError logs an error with context
func LogError(msg string, err error, attrs ...any) {
	args := append([]any{"error", err}, attrs...)
	GetLogger().Error(msg, args...)
}

// LogInfo logs informational message
func LogInfo(msg string, attrs ...any) {
	GetLogger().Info(msg, attrs...)
}

// LogDebug logs debug message
func LogDebug(msg string, attrs ...any) {
	GetLogger().Debug(msg, attrs...)
}

// LogWarn logs warning message
func LogWarn(msg string, attrs ...any) {
	GetLogger().Warn(msg, attrs...)
}

// maskingHandler runs every attribute through the global masker before
// handing the record to the wrapped handler.
type maskingHandler struct {
	next slog.Handler
}

func (h *maskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *maskingHandler) Handle(ctx context.Context, r slog.Record) error {
	if !IsMaskingEnabled() {
		return h.next.Handle(ctx, r)
	}
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(maskAttr(GetGlobalMasker(), a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *maskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(GetGlobalMasker(), a)
	}
	return &maskingHandler{next: h.next.WithAttrs(masked)}
}

func (h *maskingHandler) WithGroup(name string) slog.Handler {
	return &maskingHandler{next: h.next.WithGroup(name)}
}

func maskAttr(m *Masker, a slog.Attr) slog.Attr {
	if m == nil || !m.IsEnabled() {
		return a
	}
	switch a.Value.Kind() {
	case slog.KindString:
		masked := m.MaskValue(a.Key, a.Value.String())
		if s, ok := masked.(string); ok {
			return slog.String(a.Key, s)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, m.MaskString(err.Error()))
		}
	}
	return a
}
