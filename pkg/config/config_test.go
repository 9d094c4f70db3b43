package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "telegram": {"token": "file-token", "allow_from": ["1"]},
	  "pipeline": {"workers": 4, "cache_dir": "/tmp/gifs"},
	  "converter": {"command": ["python3"], "script": "/opt/tgsconvert.py", "timeout_seconds": 5},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("STICKERGIF_CONFIG", path)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("STICKERGIF_WORKERS", "")
	t.Setenv("STICKERGIF_CACHE_DIR", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("pipeline.workers = %d, want 4", cfg.Pipeline.Workers)
	}
	if cfg.Converter.Script != "/opt/tgsconvert.py" {
		t.Fatalf("converter.script = %q", cfg.Converter.Script)
	}
	if cfg.Converter.MinOutputBytes != DefaultMinOutputBytes {
		t.Fatalf("converter.min_output_bytes = %d, want default %d", cfg.Converter.MinOutputBytes, DefaultMinOutputBytes)
	}
	if cfg.Pipeline.DownloadAttempts != DefaultDownloadAttempts {
		t.Fatalf("pipeline.download_attempts = %d, want %d", cfg.Pipeline.DownloadAttempts, DefaultDownloadAttempts)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("STICKERGIF_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestLoadConfigNotFound(t *testing.T) {
	t.Setenv("STICKERGIF_CONFIG", "")
	t.Chdir(t.TempDir())

	_, err := LoadConfig()
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("LoadConfig error = %v, want ErrConfigNotFound", err)
	}
}

func TestLoadConfigMalformedIsNotNotFound(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("STICKERGIF_CONFIG", "")
	t.Chdir(dir)

	_, err := LoadConfig()
	if err == nil || errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("LoadConfig error = %v, want parse error", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", " env-token ")
	t.Setenv("TELEGRAM_ALLOW_FROM", "1, 2,,3")
	t.Setenv("TELEGRAM_PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("STICKERGIF_WORKERS", "3")
	t.Setenv("STICKERGIF_CACHE_DIR", "/var/cache/gifs")

	cfg := &Config{Telegram: TelegramConfig{Token: "file-token"}}
	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides error: %v", err)
	}

	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q, want env-token", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowFrom) != 3 {
		t.Fatalf("allow_from = %v, want 3 entries", cfg.Telegram.AllowFrom)
	}
	if cfg.Telegram.Proxy != "socks5://127.0.0.1:1080" {
		t.Fatalf("proxy = %q", cfg.Telegram.Proxy)
	}
	if cfg.Pipeline.Workers != 3 {
		t.Fatalf("workers = %d, want 3", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.CacheDir != "/var/cache/gifs" {
		t.Fatalf("cache_dir = %q", cfg.Pipeline.CacheDir)
	}
}

func TestEnvOverridesRejectsBadWorkers(t *testing.T) {
	t.Setenv("STICKERGIF_WORKERS", "many")

	if err := applyEnvOverrides(&Config{}); err == nil {
		t.Fatal("expected error for non-numeric worker count")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Pipeline.Workers != DefaultWorkers {
		t.Fatalf("workers = %d, want %d", cfg.Pipeline.Workers, DefaultWorkers)
	}
	if got := cfg.Pipeline.DownloadRetryDelay().Seconds(); got != DefaultDownloadRetryDelaySeconds {
		t.Fatalf("download retry delay = %vs, want %d", got, DefaultDownloadRetryDelaySeconds)
	}
	if got := cfg.Converter.Timeout().Seconds(); got != DefaultConverterTimeoutSeconds {
		t.Fatalf("converter timeout = %vs, want %d", got, DefaultConverterTimeoutSeconds)
	}
	if len(cfg.Converter.Command) != 1 {
		t.Fatalf("converter command = %v, want interpreter only", cfg.Converter.Command)
	}
	if cfg.Render.CanvasSize != DefaultCanvasSize || cfg.Render.FontSize != DefaultFontSize {
		t.Fatalf("render defaults = %+v", cfg.Render)
	}
}

func TestApplyDefaultsConverterScriptOnlyForDefaultInterpreter(t *testing.T) {
	var def Config
	def.ApplyDefaults()
	if def.Converter.Script != DefaultConverterScript {
		t.Fatalf("script = %q, want %q", def.Converter.Script, DefaultConverterScript)
	}
	if len(def.Converter.PreflightArgs) != 2 || def.Converter.PreflightArgs[1] != DefaultConverterPreflight {
		t.Fatalf("preflight = %v", def.Converter.PreflightArgs)
	}

	custom := Config{Converter: ConverterConfig{Command: []string{"lottie_convert.py"}}}
	custom.ApplyDefaults()
	if custom.Converter.Script != "" || custom.Converter.PreflightArgs != nil {
		t.Fatalf("custom converter = %+v, want command only", custom.Converter)
	}
}

func TestApplyDefaultsNegativeDelayMeansNoWait(t *testing.T) {
	cfg := Config{Pipeline: PipelineConfig{DownloadRetryDelaySeconds: -1}}
	cfg.ApplyDefaults()

	if cfg.Pipeline.DownloadRetryDelay() != 0 {
		t.Fatalf("delay = %v, want 0", cfg.Pipeline.DownloadRetryDelay())
	}
}
