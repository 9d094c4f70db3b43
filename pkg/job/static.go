package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"stickergif/pkg/bus"
	"stickergif/pkg/cache"

	"golang.org/x/image/webp"
)

// StaticSticker relocates a staged .webp sticker to its .gif cache path.
// The bytes are not re-encoded; Telegram clients play the file as an animation.
type StaticSticker struct {
	base

	source string
	target string
}

func NewStaticSticker(key cache.Key, origin bus.ChatHandle, source string, log *slog.Logger) *StaticSticker {
	return &StaticSticker{
		base:   newBase(key, origin, log, "job.static"),
		source: source,
		target: gifPath(source),
	}
}

func (j *StaticSticker) Kind() Kind     { return KindStaticSticker }
func (j *StaticSticker) Source() string { return j.source }
func (j *StaticSticker) Target() string { return j.target }

func (j *StaticSticker) Execute(context.Context) Outcome {
	if info, err := os.Stat(j.target); err == nil && info.Mode().IsRegular() {
		j.log.Info("Target already present", "path", j.target)
		if err := os.Remove(j.source); err != nil && !os.IsNotExist(err) {
			j.log.Debug("Could not remove staged source", "error", err)
		}
		return Outcome{Path: j.target}
	}

	j.probe()

	if err := os.Rename(j.source, j.target); err != nil {
		j.log.Error("Failed to move sticker into cache", "error", err)
		if os.IsNotExist(err) {
			return failed(WrapError(FailureInputMissing, "source not found", err))
		}
		return failed(WrapError(FailureConversionFailed, "move sticker into cache", err))
	}

	j.log.Info("Static sticker stored", "path", j.target)
	return Outcome{Path: j.target}
}

func (j *StaticSticker) probe() {
	f, err := os.Open(j.source)
	if err != nil {
		return
	}
	defer f.Close()

	cfg, err := webp.DecodeConfig(f)
	if err != nil {
		j.log.Warn("Staged sticker is not a readable webp", "error", err)
		return
	}
	j.log.Debug("Static sticker header", "size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
}
