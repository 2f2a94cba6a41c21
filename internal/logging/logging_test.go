package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T, level Level, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	SetFormat(format)
	t.Cleanup(func() {
		SetFormat("text")
		SetSimpleMode(false)
		SetLevel(LevelInfo)
		SetOutput(nil)
	})
	return &buf
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t, LevelInfo, "json")

	Info("preview returned %d rows", 42)

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("invalid JSON output: %v\nOutput: %s", err, buf.String())
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing 'ts' field")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["msg"] != "preview returned 42 rows" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestTextFormat(t *testing.T) {
	buf := capture(t, LevelInfo, "text")

	Warn("connection to %s failed", "ch-1")

	out := buf.String()
	if !strings.Contains(out, "[WARN]") {
		t.Errorf("expected [WARN] in %q", out)
	}
	if !strings.Contains(out, "connection to ch-1 failed") {
		t.Errorf("expected message in %q", out)
	}
}

func TestSimpleModeOmitsTimestamp(t *testing.T) {
	buf := capture(t, LevelInfo, "text")
	SetSimpleMode(true)

	Info("hello")

	if got := buf.String(); got != "[INFO] hello\n" {
		t.Errorf("simple output = %q", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn, "text")

	Debug("hidden")
	Info("hidden")
	Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-threshold message written: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestMessageWithoutArgsIsNotFormatted(t *testing.T) {
	buf := capture(t, LevelInfo, "text")
	SetSimpleMode(true)

	Info("progress 100%")

	if got := buf.String(); got != "[INFO] progress 100%\n" {
		t.Errorf("output = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"Warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"", LevelInfo, true},
		{"trace", LevelInfo, true},
		{" info", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseLevel(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("ParseLevel(%q) unexpected error: %v", tt.input, err)
			}
			if level != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestGetSetLevel(t *testing.T) {
	original := GetLevel()
	defer SetLevel(original)

	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		SetLevel(level)
		if got := GetLevel(); got != level {
			t.Errorf("SetLevel(%v); GetLevel() = %v", level, got)
		}
	}
}
