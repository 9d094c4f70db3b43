package job

import (
	"context"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"log/slog"

	"stickergif/pkg/bus"
	"stickergif/pkg/cache"
)

// Renderer rasterizes a symbol string.
type Renderer interface {
	Render(text string) (image.Image, error)
}

// Symbol renders a text symbol to a static gif.
type Symbol struct {
	base

	text     string
	target   string
	renderer Renderer
}

func NewSymbol(key cache.Key, origin bus.ChatHandle, text string, target string, renderer Renderer, log *slog.Logger) *Symbol {
	return &Symbol{
		base:     newBase(key, origin, log, "job.symbol"),
		text:     text,
		target:   target,
		renderer: renderer,
	}
}

func (j *Symbol) Kind() Kind     { return KindSymbol }
func (j *Symbol) Text() string   { return j.text }
func (j *Symbol) Target() string { return j.target }

func (j *Symbol) Execute(context.Context) Outcome {
	if j.renderer == nil {
		return failed(NewError(FailureRenderFailed, "no renderer configured"))
	}

	img, err := j.renderer.Render(j.text)
	if err != nil {
		j.log.Error("Failed to render symbol", "error", err)
		return failed(WrapError(FailureRenderFailed, "render", err))
	}

	err = writeAtomic(j.target, func(w io.Writer) error {
		return encodeGIF(w, img)
	})
	if err != nil {
		j.log.Error("Failed to write symbol gif", "error", err)
		return failed(WrapError(FailureRenderFailed, "encode", err))
	}

	j.log.Info("Symbol rendered", "path", j.target)
	return Outcome{Path: j.target}
}

func encodeGIF(w io.Writer, img image.Image) error {
	if p, ok := img.(*image.Paletted); ok {
		return gif.Encode(w, p, nil)
	}

	bounds := img.Bounds()
	p := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(p, bounds, img, bounds.Min)
	return gif.Encode(w, p, nil)
}
