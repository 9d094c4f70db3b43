package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"stickergif/pkg/bus"
	"stickergif/pkg/cache"
	"stickergif/pkg/tgs"
)

const (
	DefaultConversionTimeout = 30 * time.Second
	DefaultMinOutputBytes    = 1000
)

// AnimatedOptions tunes animated sticker conversion.
type AnimatedOptions struct {
	Timeout        time.Duration
	MinOutputBytes int64
}

// AnimatedSticker converts a staged .tgs file to gif through an external converter.
// It falls back to PlaceholderGIF whenever real conversion does not succeed.
type AnimatedSticker struct {
	base

	source    string
	target    string
	converter Converter
	opts      AnimatedOptions
}

func NewAnimatedSticker(key cache.Key, origin bus.ChatHandle, source string, converter Converter, opts AnimatedOptions, log *slog.Logger) *AnimatedSticker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConversionTimeout
	}
	if opts.MinOutputBytes <= 0 {
		opts.MinOutputBytes = DefaultMinOutputBytes
	}

	return &AnimatedSticker{
		base:      newBase(key, origin, log, "job.animated"),
		source:    source,
		target:    gifPath(source),
		converter: converter,
		opts:      opts,
	}
}

func (j *AnimatedSticker) Kind() Kind     { return KindAnimatedSticker }
func (j *AnimatedSticker) Source() string { return j.source }
func (j *AnimatedSticker) Target() string { return j.target }

func (j *AnimatedSticker) Execute(ctx context.Context) Outcome {
	j.log.Info("Starting animated sticker conversion", "source", j.source, "target", j.target)

	err := j.convert(ctx)
	if err == nil {
		return Outcome{Path: j.target}
	}

	j.log.Warn("Animated sticker conversion failed, writing placeholder", "error", err)
	if werr := WritePlaceholder(j.target); werr != nil {
		j.log.Error("Failed to write placeholder gif", "error", werr)
		return failed(WrapError(FailureConversionFailed, "write placeholder", errors.Join(err, werr)))
	}

	j.log.Info("Placeholder gif written", "path", j.target)
	return Outcome{Path: j.target, Placeholder: true}
}

func (j *AnimatedSticker) convert(ctx context.Context) error {
	info, err := os.Stat(j.source)
	if err != nil {
		return WrapError(FailureInputMissing, "source not found", err)
	}
	if info.Size() == 0 {
		return NewError(FailureInputMissing, "source is empty")
	}
	j.log.Info("Source size", "bytes", info.Size())

	if meta, err := tgs.Probe(j.source); err != nil {
		j.log.Warn("Could not read animation header", "error", err)
	} else {
		j.log.Info("Animation header", "width", meta.Width, "height", meta.Height, "fps", meta.FrameRate, "frames", meta.Frames(), "duration", meta.Duration())
	}

	if j.converter == nil {
		return WrapError(FailureConversionFailed, "", ErrConverterUnavailable)
	}

	// Converters pick the output encoder from the extension, so the scratch
	// file keeps .gif and stays hidden from cache lookups.
	scratch := filepath.Join(filepath.Dir(j.target), "."+j.id+"-"+filepath.Base(j.target))
	defer os.Remove(scratch)

	runCtx, cancel := context.WithTimeout(ctx, j.opts.Timeout)
	defer cancel()

	if err := j.converter.Convert(runCtx, j.source, scratch); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return WrapError(FailureConversionFailed, fmt.Sprintf("timed out after %s", j.opts.Timeout), err)
		}
		return WrapError(FailureConversionFailed, "", err)
	}

	out, err := os.Stat(scratch)
	if err != nil {
		return WrapError(FailureConversionFailed, "output not created", err)
	}
	if out.Size() <= j.opts.MinOutputBytes {
		return NewError(FailureConversionFailed, fmt.Sprintf("output too small (%d bytes), may be corrupted", out.Size()))
	}

	if err := os.Rename(scratch, j.target); err != nil {
		return WrapError(FailureConversionFailed, "move output into cache", err)
	}

	j.log.Info("Gif created", "path", j.target, "bytes", out.Size())
	return nil
}
