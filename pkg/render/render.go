// Package render rasterizes short text symbols onto a fixed square canvas.
package render

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"stickergif/pkg/logger"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultCanvasSize = 100
	DefaultFontSize   = 45
)

var (
	Background = color.White
	// Foreground is yellow-green.
	Foreground = color.RGBA{R: 154, G: 205, B: 50, A: 255}
)

// Options configures a Renderer.
type Options struct {
	FontPath   string
	FontSize   float64
	CanvasSize int
}

// Renderer draws symbols with one font face. It is safe for concurrent use.
type Renderer struct {
	size     int
	fontName string

	mu   sync.Mutex
	face font.Face
	log  *slog.Logger
}

// New loads the configured font, or the first installed platform symbol
// font, falling back to the embedded Go font.
func New(opts Options, log *slog.Logger) (*Renderer, error) {
	if opts.CanvasSize <= 0 {
		opts.CanvasSize = DefaultCanvasSize
	}
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultFontSize
	}
	log = logger.Component(log, "render")

	var (
		parsed *opentype.Font
		name   string
		err    error
	)
	if path := strings.TrimSpace(opts.FontPath); path != "" {
		parsed, err = loadFont(path)
		if err != nil {
			return nil, err
		}
		name = path
	} else {
		for _, candidate := range platformFonts() {
			if f, ferr := loadFont(candidate); ferr == nil {
				parsed, name = f, candidate
				break
			}
		}
	}
	if parsed == nil {
		parsed, err = opentype.Parse(goregular.TTF)
		if err != nil {
			return nil, fmt.Errorf("parse embedded font: %w", err)
		}
		name = "goregular"
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}

	log.Info("Symbol font loaded", "font", name, "size", opts.FontSize)
	return &Renderer{size: opts.CanvasSize, fontName: name, face: face, log: log}, nil
}

// FontName reports the font in use.
func (r *Renderer) FontName() string {
	return r.fontName
}

// Render draws text centered horizontally with its ascent at the top edge.
func (r *Renderer) Render(text string) (image.Image, error) {
	if text == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, r.size, r.size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range text {
		if _, ok := r.face.GlyphAdvance(ch); !ok {
			r.log.Warn("Font has no glyph for symbol", "rune", fmt.Sprintf("%U", ch), "font", r.fontName)
		}
	}

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(Foreground),
		Face: r.face,
	}
	width := d.MeasureString(text)
	ascent := r.face.Metrics().Ascent
	d.Dot = fixed.Point26_6{
		X: (fixed.I(r.size) - width) / 2,
		Y: ascent,
	}
	d.DrawString(text)

	return canvas, nil
}

// Close releases the font face.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.face.Close()
}

func loadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return f, nil
}

func platformFonts() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Windows\Fonts\seguisym.ttf`,
			`C:\Windows\Fonts\seguiemj.ttf`,
		}
	case "darwin":
		return []string{
			"/System/Library/Fonts/Apple Symbols.ttf",
			"/Library/Fonts/Arial Unicode.ttf",
		}
	default:
		return []string{
			"/usr/share/fonts/truetype/noto/NotoSansSymbols2-Regular.ttf",
			"/usr/share/fonts/noto/NotoSansSymbols2-Regular.ttf",
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/TTF/DejaVuSans.ttf",
		}
	}
}
