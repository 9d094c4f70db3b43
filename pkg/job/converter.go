package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"stickergif/pkg/logger"
)

// converterWaitDelay bounds how long output pipes may outlive a killed converter.
const converterWaitDelay = 2 * time.Second

// ErrConverterUnavailable reports a converter program or script that cannot be found.
var ErrConverterUnavailable = errors.New("converter unavailable")

// converterPreflightTimeout bounds the dependency probe run at startup.
const converterPreflightTimeout = 15 * time.Second

// Converter turns an animated sticker file into a gif at target.
type Converter interface {
	Convert(ctx context.Context, source string, target string) error
}

// ProcessConverter runs an external program as `<command...> [script] <source> <target>`.
// Stdout lines are logged at info level and stderr lines at error level.
type ProcessConverter struct {
	Command []string
	Script  string
	WorkDir string

	// PreflightArgs, when set, are passed to the program by Preflight to
	// prove its runtime dependencies load, e.g. `-c "import lottie"`.
	PreflightArgs []string

	log *slog.Logger
}

// NewProcessConverter builds a converter around command and an optional script argument.
func NewProcessConverter(command []string, script string, log *slog.Logger) *ProcessConverter {
	return &ProcessConverter{
		Command: append([]string(nil), command...),
		Script:  strings.TrimSpace(script),
		log:     logger.Component(log, "job.converter"),
	}
}

// Check verifies the program resolves on PATH and the script exists.
func (c *ProcessConverter) Check() error {
	if len(c.Command) == 0 || strings.TrimSpace(c.Command[0]) == "" {
		return fmt.Errorf("%w: no command configured", ErrConverterUnavailable)
	}
	if _, err := exec.LookPath(c.Command[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
	}
	if c.Script != "" {
		if info, err := os.Stat(c.Script); err != nil || info.IsDir() {
			return fmt.Errorf("%w: script %s not found", ErrConverterUnavailable, c.Script)
		}
	}

	return nil
}

// Preflight runs the program with PreflightArgs and reports a non-zero exit as
// ErrConverterUnavailable. It is a no-op without PreflightArgs.
func (c *ProcessConverter) Preflight(ctx context.Context) error {
	if len(c.PreflightArgs) == 0 {
		return nil
	}
	if err := c.Check(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, converterPreflightTimeout)
	defer cancel()

	args := append(append([]string(nil), c.Command[1:]...), c.PreflightArgs...)
	out := newLineLogger(c.log, slog.LevelDebug, "Converter preflight")
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	cmd.Dir = c.WorkDir
	cmd.Stdout = out
	cmd.Stderr = &stderr
	cmd.WaitDelay = converterWaitDelay

	err := cmd.Run()
	out.Flush()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if i := strings.LastIndexByte(detail, '\n'); i >= 0 {
			detail = detail[i+1:]
		}
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%w: dependency check failed: %s", ErrConverterUnavailable, detail)
	}
	return nil
}

// Convert runs the converter until it exits or ctx is done. The process is
// killed when ctx ends, whatever path led there.
func (c *ProcessConverter) Convert(ctx context.Context, source string, target string) error {
	if err := c.Check(); err != nil {
		return err
	}

	args := append([]string(nil), c.Command[1:]...)
	if c.Script != "" {
		args = append(args, c.Script)
	}
	args = append(args, source, target)

	stdout := newLineLogger(c.log, slog.LevelInfo, "Converter output")
	stderr := newLineLogger(c.log, slog.LevelError, "Converter error")

	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	cmd.Dir = c.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = converterWaitDelay

	start := time.Now()
	c.log.Debug("Starting converter", "program", c.Command[0], "args", args)

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	elapsed := time.Since(start)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("converter stopped after %s: %w", elapsed.Round(time.Millisecond), ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("converter exited with code %d", exitErr.ExitCode())
		}
		return fmt.Errorf("run converter: %w", err)
	}

	c.log.Info("Converter finished", "duration", elapsed)
	return nil
}

// lineLogger is an io.Writer that logs each complete line it receives.
type lineLogger struct {
	log   *slog.Logger
	level slog.Level
	msg   string
	buf   bytes.Buffer
}

func newLineLogger(log *slog.Logger, level slog.Level, msg string) *lineLogger {
	return &lineLogger{log: log, level: level, msg: msg}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			l.buf.Reset()
			l.buf.WriteString(line)
			return len(p), nil
		}
		l.emit(line)
	}
}

// Flush logs any trailing line without a newline.
func (l *lineLogger) Flush() {
	if l.buf.Len() == 0 {
		return
	}
	l.emit(l.buf.String())
	l.buf.Reset()
}

func (l *lineLogger) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	l.log.Log(context.Background(), l.level, l.msg, "line", line)
}
