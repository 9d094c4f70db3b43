package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stickergif/pkg/config"
)

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envLevel, envFormat, envAddSource, envComponents} {
		t.Setenv(key, "")
	}
}

func decodeLines(t *testing.T, out *bytes.Buffer) []jsonLine {
	t.Helper()

	var lines []jsonLine
	for _, raw := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if raw == "" {
			continue
		}
		var line jsonLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			t.Fatalf("unmarshal log line %q: %v", raw, err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestJSONLineShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	Component(log, "dispatch").Info("Job queued",
		"job_id", "42",
		"ok", true,
		"elapsed", 1500*time.Millisecond,
		"error", errors.New("boom"),
		slog.Group("stats", "queued", 3),
	)

	lines := decodeLines(t, &out)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	line := lines[0]

	if line.Level != "info" || line.Msg != "Job queued" || line.Component != "dispatch" {
		t.Fatalf("line = %+v", line)
	}
	if line.Time == "" {
		t.Fatal("expected time")
	}
	want := map[string]any{"job_id": "42", "ok": true, "elapsed": "1.5s", "error": "boom", "stats.queued": float64(3)}
	for key, value := range want {
		if line.Fields[key] != value {
			t.Fatalf("fields[%s] = %v, want %v", key, line.Fields[key], value)
		}
	}
}

func TestBaseLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if out.Len() != 0 {
		t.Fatalf("expected no output for info, got %q", out.String())
	}

	log.Error("Kept")
	if out.Len() == 0 {
		t.Fatal("expected output for error")
	}
}

func TestComponentLevelOverrides(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{
		Format: "json",
		Level:  "info",
		Components: map[string]string{
			"job":           "warn",
			"job.symbol":    "debug",
			"channel.other": "error",
		},
	}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	Component(log, "job.converter").Info("Converter output", "line", "frame 1")
	Component(log, "job.converter").Warn("Converter slow")
	Component(log, "job.symbol").Debug("Rendering")
	Component(log, "dispatch").Info("Worker started")
	Component(log, "dispatch").Debug("Dropped")

	var got []string
	for _, line := range decodeLines(t, &out) {
		got = append(got, line.Component+":"+line.Msg)
	}
	want := []string{"job.converter:Converter slow", "job.symbol:Rendering", "dispatch:Worker started"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("logged = %v, want %v", got, want)
	}
}

func TestComponentLevelsFromEnvironment(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv(envComponents, "job.converter=error, intake=debug")

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	Component(log, "job.converter").Warn("Hidden")
	Component(log, "intake").Debug("Shown")

	lines := decodeLines(t, &out)
	if len(lines) != 1 || lines[0].Msg != "Shown" {
		t.Fatalf("lines = %+v", lines)
	}
}

func TestComponentLevelsRejectBadInput(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := NewWithWriter(config.LoggingConfig{Components: map[string]string{"job": "loud"}}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown component level")
	}

	t.Setenv(envComponents, "job")
	if _, err := NewWithWriter(config.LoggingConfig{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for malformed env pair")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv(envLevel, "debug")
	t.Setenv(envFormat, "text")

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	Component(log, "test").Debug("Debug enabled")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := NewWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("NewWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" || strings.HasPrefix(line, "{") {
		t.Fatalf("expected text output, got %q", line)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := NewWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestOpenFileAppends(t *testing.T) {
	unsetLoggingEnv(t)
	path := filepath.Join(t.TempDir(), "logs", "stickergif.log")

	for _, msg := range []string{"First", "Second"} {
		log, closeLog, err := OpenFile(config.LoggingConfig{Format: "json"}, path)
		if err != nil {
			t.Fatalf("OpenFile error: %v", err)
		}
		Component(log, "cmd.serve").Info(msg)
		if err := closeLog(); err != nil {
			t.Fatalf("close log: %v", err)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := decodeLines(t, bytes.NewBuffer(content))
	if len(lines) != 2 || lines[0].Msg != "First" || lines[1].Msg != "Second" {
		t.Fatalf("lines = %+v", lines)
	}
}

func TestOpenFileRequiresPath(t *testing.T) {
	if _, _, err := OpenFile(config.LoggingConfig{}, " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestComponentFallsBackToDefault(t *testing.T) {
	if Component(nil, "dispatch") == nil {
		t.Fatal("expected default-backed logger for nil input")
	}
}
