package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	envConfigPath        = "STICKERGIF_CONFIG"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envTelegramProxy     = "TELEGRAM_PROXY"
	envWorkers           = "STICKERGIF_WORKERS"
	envCacheDir          = "STICKERGIF_CACHE_DIR"
)

const (
	DefaultWorkers                   = 1
	DefaultCacheDir                  = "gifs"
	DefaultDownloadAttempts          = 3
	DefaultDownloadRetryDelaySeconds = 10
	DefaultConverterTimeoutSeconds   = 30
	DefaultMinOutputBytes            = 1000
	DefaultConverterScript           = "tgsconvert.py"
	DefaultConverterPreflight        = "import lottie; from PIL import Image"
	DefaultRequestTimeoutSeconds     = 20
	DefaultCanvasSize                = 100
	DefaultFontSize                  = 45
	DefaultStatusHost                = "127.0.0.1"
	DefaultStatusPort                = 18791
)

// ErrConfigNotFound reports that no config.json exists in the default locations.
var ErrConfigNotFound = errors.New("config.json not found")

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Converter ConverterConfig `json:"converter"`
	Render    RenderConfig    `json:"render"`
	Status    StatusConfig    `json:"status"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`

	// Components maps a component name, or a dotted parent such as "job",
	// to its own level.
	Components map[string]string `json:"components,omitempty"`
}

// TelegramConfig configures the Telegram bot connection.
type TelegramConfig struct {
	Token                 string   `json:"token"`
	Proxy                 string   `json:"proxy"`
	AllowFrom             []string `json:"allow_from"`
	RequestTimeoutSeconds int      `json:"request_timeout_seconds"`
	RateLimit             float64  `json:"rate_limit"`
	RateBurst             int      `json:"rate_burst"`
}

// PipelineConfig sizes the worker pool and locates the gif cache.
type PipelineConfig struct {
	Workers                   int    `json:"workers"`
	CacheDir                  string `json:"cache_dir"`
	QueueCapacity             int    `json:"queue_capacity"`
	Overflow                  string `json:"overflow"`
	DownloadAttempts          int    `json:"download_attempts"`
	DownloadRetryDelaySeconds int    `json:"download_retry_delay_seconds"`
}

// ConverterConfig describes the external animated sticker converter.
type ConverterConfig struct {
	Command        []string `json:"command"`
	Script         string   `json:"script"`
	PreflightArgs  []string `json:"preflight_args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	MinOutputBytes int64    `json:"min_output_bytes"`
}

// RenderConfig controls symbol rasterization.
type RenderConfig struct {
	FontPath   string  `json:"font_path"`
	FontSize   float64 `json:"font_size"`
	CanvasSize int     `json:"canvas_size"`
}

// StatusConfig configures the status HTTP server. A negative port disables it.
type StatusConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Timeout returns the converter wall-clock budget.
func (c ConverterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DownloadRetryDelay returns the fixed pause between download attempts.
func (c PipelineConfig) DownloadRetryDelay() time.Duration {
	return time.Duration(c.DownloadRetryDelaySeconds) * time.Second
}

// RequestTimeout returns the Telegram HTTP client timeout.
func (c TelegramConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides and defaults.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = DefaultWorkers
	}
	if strings.TrimSpace(c.Pipeline.CacheDir) == "" {
		c.Pipeline.CacheDir = DefaultCacheDir
	}
	if c.Pipeline.DownloadAttempts <= 0 {
		c.Pipeline.DownloadAttempts = DefaultDownloadAttempts
	}
	if c.Pipeline.DownloadRetryDelaySeconds < 0 {
		c.Pipeline.DownloadRetryDelaySeconds = 0
	} else if c.Pipeline.DownloadRetryDelaySeconds == 0 {
		c.Pipeline.DownloadRetryDelaySeconds = DefaultDownloadRetryDelaySeconds
	}

	// Script and dependency probe defaults belong to the default interpreter.
	// A custom command such as python-lottie's lottie_convert.py runs as given.
	if len(c.Converter.Command) == 0 {
		c.Converter.Command = []string{defaultPython()}
		if strings.TrimSpace(c.Converter.Script) == "" {
			c.Converter.Script = DefaultConverterScript
		}
		if c.Converter.PreflightArgs == nil {
			c.Converter.PreflightArgs = []string{"-c", DefaultConverterPreflight}
		}
	}
	if c.Converter.TimeoutSeconds <= 0 {
		c.Converter.TimeoutSeconds = DefaultConverterTimeoutSeconds
	}
	if c.Converter.MinOutputBytes <= 0 {
		c.Converter.MinOutputBytes = DefaultMinOutputBytes
	}

	if c.Render.CanvasSize <= 0 {
		c.Render.CanvasSize = DefaultCanvasSize
	}
	if c.Render.FontSize <= 0 {
		c.Render.FontSize = DefaultFontSize
	}

	if c.Telegram.RequestTimeoutSeconds <= 0 {
		c.Telegram.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}

	if strings.TrimSpace(c.Status.Host) == "" {
		c.Status.Host = DefaultStatusHost
	}
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if proxy := strings.TrimSpace(os.Getenv(envTelegramProxy)); proxy != "" {
		cfg.Telegram.Proxy = proxy
	}

	if rawWorkers := strings.TrimSpace(os.Getenv(envWorkers)); rawWorkers != "" {
		workers, err := strconv.Atoi(rawWorkers)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envWorkers, err)
		}
		cfg.Pipeline.Workers = workers
	}

	if dir := strings.TrimSpace(os.Getenv(envCacheDir)); dir != "" {
		cfg.Pipeline.CacheDir = dir
	}

	return nil
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

func defaultPython() string {
	if filepath.Separator == '\\' {
		return "python"
	}
	return "python3"
}

// findConfigPath resolves the active config file location.
//
// Precedence is STICKERGIF_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w (checked %s and %s)", ErrConfigNotFound, candidates[0], candidates[1])
}
