package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel_ToSlogLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"error level", LogLevelError, slog.LevelError},
		{"warn level", LogLevelWarn, slog.LevelWarn},
		{"info level", LogLevelInfo, slog.LevelInfo},
		{"debug level", LogLevelDebug, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.ToSlogLevel(); got != tt.expected {
				t.Errorf("ToSlogLevel() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"", LogLevelInfo, true},
		{"debug", LogLevelDebug, true},
		{"warning", LogLevelWarn, true},
		{"error", LogLevelError, true},
		{"verbose", LogLevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLogLevel(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLogger_TextOutputMasksDSNPassword(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LogLevelInfo, "text")

	logger.WithStore("postgresql").Info("connecting", "dsn", "postgres://svc:hunter2@db:5432/v2?sslmode=disable")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("password leaked into log output: %s", out)
	}
	if !strings.Contains(out, "store=postgresql") {
		t.Errorf("expected store attribute, got: %s", out)
	}
}

func TestLogger_JSONOutputMasksErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LogLevelDebug, "json")

	logger.WithUnit(42).Error("unit failed", "error", errors.New("dial postgres://u:topsecret@h/db: refused"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if rec["legacy_owner_id"] != float64(42) {
		t.Errorf("legacy_owner_id = %v", rec["legacy_owner_id"])
	}
	if strings.Contains(rec["error"].(string), "topsecret") {
		t.Errorf("secret not masked: %v", rec["error"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LogLevelWarn, "text")
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn record missing")
	}
}

func TestSetDefaultLogger(t *testing.T) {
	original := GetLogger()
	defer SetDefaultLogger(original)

	custom := NewLogger(LogLevelDebug)
	SetDefaultLogger(custom)
	if GetLogger() != custom {
		t.Error("SetDefaultLogger did not replace the default logger")
	}
	SetDefaultLogger(nil)
	if GetLogger() != custom {
		t.Error("nil logger must be ignored")
	}
}

func TestColorHandler_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LogLevelInfo, "color")
	logger.WithComponent("orchestrator").Info("unit finished", "state", "committed", "attempts", 1)

	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Errorf("unexpected ANSI codes for non-terminal writer: %q", out)
	}
	for _, want := range []string{"[INFO ]", "unit finished", `state="committed"`, "attempts=1", "component="} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
