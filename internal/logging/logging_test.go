package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/conorfennell/knoldrill/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Expected %v for %q, but got %v", tt.want, tt.in, got)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected an error for an unknown level, but got nil")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown", "session", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, but got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output, but got %q", lines[0])
	}
	if entry["msg"] != "shown" || entry["session"] != "abc" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("synced", "parsed", 3)
	if !strings.Contains(buf.String(), "msg=synced parsed=3") {
		t.Errorf("Expected text output, but got %q", buf.String())
	}

	if _, err := New(config.LogConfig{Level: "info", Format: "xml"}, &buf); err == nil {
		t.Error("Expected an error for an unknown format, but got nil")
	}
}
