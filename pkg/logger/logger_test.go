package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(Config{Level: "info", Format: "json", Output: &buf})

	log.Debug("hidden")
	log.Info("probe finished", "monitor_id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if entry["msg"] != "probe finished" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["monitor_id"] != float64(7) {
		t.Errorf("monitor_id = %v", entry["monitor_id"])
	}
}

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "debug", Format: "text", Output: &buf}).Debug("tick")

	if !strings.Contains(buf.String(), "msg=tick") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}
