package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Warn", WARN},
		{"error", ERROR},
		{"", INFO},
		{"verbose", INFO},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WARN)
	l.SetOutput(&buf)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("output should not contain messages below WARN: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") {
		t.Errorf("output missing WARN line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("output missing ERROR line: %q", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(INFO)
	l.SetOutput(&buf)
	l.SetFormat("JSON")

	l.Info("course %d loaded", 7)

	line := buf.String()
	start := strings.Index(line, "{")
	if start < 0 {
		t.Fatalf("expected JSON payload, got %q", line)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(strings.TrimSpace(line[start:])), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if payload["level"] != "INFO" || payload["msg"] != "course 7 loaded" {
		t.Errorf("payload = %v", payload)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	l := NewLogger(INFO)
	l.SetLevel(DEBUG)
	if l.GetLevel() != DEBUG {
		t.Errorf("GetLevel() = %v, want DEBUG", l.GetLevel())
	}
}

func TestNewFileWriter_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error: %v", err)
	}
	defer w.Close()

	l := NewLogger(INFO)
	l.SetOutput(w)
	l.Info("hello")
}
