package gateway

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"stickergif/pkg/config"
	"stickergif/pkg/dispatch"
)

func TestIsReady(t *testing.T) {
	t.Parallel()

	d := dispatch.New(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := &Service{dispatcher: d, channelStates: map[string]channelState{"telegram": {}}}
	if svc.isReady() {
		t.Fatal("expected not ready without a running channel")
	}

	svc.channelStates["telegram"] = channelState{Running: true}
	if !svc.isReady() {
		t.Fatal("expected ready with running channel and open dispatcher")
	}

	d.Shutdown()
	if svc.isReady() {
		t.Fatal("expected not ready once the dispatcher is closed")
	}
}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error without config")
	}
	if _, err := NewService(&config.Config{}, nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error without adapters")
	}
}

func TestBuildPipelineRejectsUnknownOverflow(t *testing.T) {
	cfg := testConfig(t, -1)
	cfg.Pipeline.Overflow = "spill"

	if _, err := buildPipeline(cfg, &scriptedAdapter{name: "telegram"}, staticFetcher{}, &recordingDelivery{}, nil); err == nil {
		t.Fatal("expected error for unknown overflow policy")
	}
}

func TestNewConverterHintsWhenDefaultScriptMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := config.ConverterConfig{
		Command: []string{"stickergif-missing-interpreter"},
		Script:  config.DefaultConverterScript,
	}
	if conv := NewConverter(cfg, log); conv == nil {
		t.Fatal("expected converter even when unavailable")
	}

	out := buf.String()
	if !strings.Contains(out, "Animated sticker converter unavailable") {
		t.Fatalf("missing unavailable warning: %s", out)
	}
	if !strings.Contains(out, "pip install lottie Pillow") {
		t.Fatalf("missing install hint: %s", out)
	}
}

func TestNewConverterCustomCommandHasNoScriptHint(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	NewConverter(config.ConverterConfig{Command: []string{"stickergif-missing-interpreter"}}, log)

	if strings.Contains(buf.String(), "pip install") {
		t.Fatalf("unexpected script hint: %s", buf.String())
	}
}
