package render

import (
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "go.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}

	r, err := New(Options{FontPath: path}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRenderCanvas(t *testing.T) {
	r := newTestRenderer(t)

	img, err := r.Render("©")
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != DefaultCanvasSize || b.Dy() != DefaultCanvasSize {
		t.Fatalf("bounds = %v", b)
	}

	if got := color.RGBAModel.Convert(img.At(0, DefaultCanvasSize-1)); got != color.RGBAModel.Convert(Background) {
		t.Fatalf("corner pixel = %v, want background", got)
	}

	var colored int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.RGBAModel.Convert(img.At(x, y)) == color.RGBAModel.Convert(Foreground) {
				colored++
			}
		}
	}
	if colored == 0 {
		t.Fatal("no glyph pixels drawn")
	}
}

func TestRenderRejectsEmpty(t *testing.T) {
	r := newTestRenderer(t)
	if _, err := r.Render(""); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestNewRejectsUnreadableFont(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.ttf")
	if err := os.WriteFile(path, []byte("not a font"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(Options{FontPath: path}, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewFallsBack(t *testing.T) {
	r, err := New(Options{CanvasSize: 64, FontSize: 20}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer r.Close()

	if r.FontName() == "" {
		t.Fatal("font name not recorded")
	}
	img, err := r.Render("®")
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if img.Bounds().Dx() != 64 {
		t.Fatalf("width = %d, want 64", img.Bounds().Dx())
	}
}
