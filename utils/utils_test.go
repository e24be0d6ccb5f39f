package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mdobak/go-xerrors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoggerExpandsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Error("boom", slog.Any("error", xerrors.New(errors.New("disk full"))))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON output, got %v: %s", err, buf.String())
	}
	group, ok := m["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error group, got %#v", m["error"])
	}
	if group["msg"] != "disk full" {
		t.Fatalf("unexpected error msg %v", group["msg"])
	}
	if _, ok := group["trace"]; !ok {
		t.Fatalf("expected stack trace in error group")
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info message should be filtered at warn level: %s", buf.String())
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("ROAD_TEST_STR", "value")
	t.Setenv("ROAD_TEST_INT", "12")
	t.Setenv("ROAD_TEST_BAD_INT", "twelve")
	t.Setenv("ROAD_TEST_DUR", "90s")

	if got := GetEnv("ROAD_TEST_STR", "x"); got != "value" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("ROAD_TEST_MISSING", "x"); got != "x" {
		t.Errorf("GetEnv fallback = %q", got)
	}
	if got := GetEnvInt("ROAD_TEST_INT", 1); got != 12 {
		t.Errorf("GetEnvInt = %d", got)
	}
	if got := GetEnvInt("ROAD_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("GetEnvInt malformed = %d", got)
	}
	if got := GetEnvDuration("ROAD_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("GetEnvDuration = %v", got)
	}
}
