// Package logger builds the process slog.Logger and scopes it per pipeline
// component, with per-component level overrides.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"stickergif/pkg/config"
)

// ComponentKey is the attribute naming the pipeline component that logged.
const ComponentKey = "component"

const (
	envLevel      = "STICKERGIF_LOG_LEVEL"
	envFormat     = "STICKERGIF_LOG_FORMAT"
	envAddSource  = "STICKERGIF_LOG_ADD_SOURCE"
	envComponents = "STICKERGIF_LOG_COMPONENTS"
)

// New builds a logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// OpenFile builds a logger appending to path, for modes where the terminal
// belongs to the dashboard. Call close once logging is done.
func OpenFile(cfg config.LoggingConfig, path string) (*slog.Logger, func() error, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil, errors.New("log file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	log, err := NewWithWriter(cfg, file)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return log, file.Close, nil
}

// NewWithWriter builds a logger writing to w. Environment variables override
// the configured level, format, source reporting and component levels.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	format := strings.ToLower(firstNonEmpty(os.Getenv(envFormat), cfg.Format, "text"))

	level, err := parseLevel(firstNonEmpty(os.Getenv(envLevel), cfg.Level, "info"))
	if err != nil {
		return nil, err
	}

	addSource := cfg.AddSource
	if raw := strings.TrimSpace(os.Getenv(envAddSource)); raw != "" {
		addSource = parseBool(raw)
	}

	overrides, err := componentLevels(cfg.Components, os.Getenv(envComponents))
	if err != nil {
		return nil, err
	}

	// Sinks accept everything; levelGate decides per component.
	var sink slog.Handler
	switch format {
	case "text":
		sink = charmLog.NewWithOptions(w, charmLog.Options{
			Level:           charmLog.DebugLevel,
			ReportTimestamp: true,
			ReportCaller:    addSource,
		})
	case "json":
		sink = newJSONHandler(w, addSource)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return slog.New(&levelGate{next: sink, base: level, level: level, overrides: overrides}), nil
}

// Component scopes log to one pipeline component, falling back to
// slog.Default when log is nil. A level configured for the name, or for one
// of its dotted parents ("job" for "job.converter"), replaces the base level.
func Component(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(ComponentKey, name)
}

// levelGate filters records by the level of the component they belong to.
type levelGate struct {
	next      slog.Handler
	base      slog.Level
	level     slog.Level
	overrides map[string]slog.Level
}

func (g *levelGate) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= g.level && g.next.Enabled(ctx, level)
}

func (g *levelGate) Handle(ctx context.Context, record slog.Record) error {
	return g.next.Handle(ctx, record)
}

func (g *levelGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *g
	next.next = g.next.WithAttrs(attrs)
	for _, attr := range attrs {
		if attr.Key == ComponentKey {
			next.level = g.levelFor(attr.Value.String())
		}
	}
	return &next
}

func (g *levelGate) WithGroup(name string) slog.Handler {
	next := *g
	next.next = g.next.WithGroup(name)
	return &next
}

func (g *levelGate) levelFor(component string) slog.Level {
	for name := component; name != ""; {
		if level, ok := g.overrides[name]; ok {
			return level
		}
		dot := strings.LastIndexByte(name, '.')
		if dot < 0 {
			break
		}
		name = name[:dot]
	}
	return g.base
}

// componentLevels merges configured levels with "name=level,..." from env.
func componentLevels(configured map[string]string, env string) (map[string]slog.Level, error) {
	raw := make(map[string]string, len(configured))
	for name, level := range configured {
		raw[strings.TrimSpace(name)] = level
	}
	for _, pair := range strings.Split(env, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, level, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%s: want name=level, got %q", envComponents, pair)
		}
		raw[strings.TrimSpace(name)] = level
	}

	levels := make(map[string]slog.Level, len(raw))
	for name, text := range raw {
		if name == "" {
			return nil, errors.New("component level with empty name")
		}
		level, err := parseLevel(text)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", name, err)
		}
		levels[name] = level
	}
	return levels, nil
}

func parseLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", input)
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
