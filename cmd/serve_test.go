package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stickergif/pkg/config"
)

func TestIsQuitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "q", want: true},
		{input: " Q ", want: true},
		{input: "quit", want: true},
		{input: ":q", want: true},
		{input: "EXIT", want: true},
		{input: "hello", want: false},
		{input: "q now", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		if got := isQuitCommand(tt.input); got != tt.want {
			t.Fatalf("isQuitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWatchQuitStopsOnQ(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		watchQuit(strings.NewReader("hello\nq\nignored\n"), cancel, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("quit command did not cancel the context")
	}
	<-done
}

func TestWatchQuitIgnoresOtherInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchQuit(strings.NewReader("one\ntwo\n"), cancel, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if ctx.Err() != nil {
		t.Fatal("context canceled without a quit command")
	}
}

func TestOpenServeLoggerWritesFileInDashboardMode(t *testing.T) {
	t.Setenv("STICKERGIF_LOG_FORMAT", "")
	t.Setenv("STICKERGIF_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "serve.log")

	prevTUI, prevFile := serveTUI, serveLogFile
	serveTUI, serveLogFile = true, path
	t.Cleanup(func() { serveTUI, serveLogFile = prevTUI, prevFile })

	log, closeLog, err := openServeLogger(config.LoggingConfig{Format: "json"})
	if err != nil {
		t.Fatalf("openServeLogger error: %v", err)
	}
	log.Info("Bot started")
	if err := closeLog(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"Bot started"`) {
		t.Fatalf("log file = %q", content)
	}
}
