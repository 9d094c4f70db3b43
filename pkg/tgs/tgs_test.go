package tgs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

const sampleLottie = `{"v":"5.5.2","fr":60,"ip":0,"op":180,"w":512,"h":512,"nm":"sticker","layers":[]}`

func gzipped(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestReadCompressed(t *testing.T) {
	info, err := Read(bytes.NewReader(gzipped(t, sampleLottie)))
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}

	if !info.Compressed {
		t.Fatal("expected compressed flag")
	}
	if info.Width != 512 || info.Height != 512 {
		t.Fatalf("size = %dx%d, want 512x512", info.Width, info.Height)
	}
	if info.Frames() != 180 {
		t.Fatalf("frames = %v, want 180", info.Frames())
	}
	if info.Duration() != 3*time.Second {
		t.Fatalf("duration = %v, want 3s", info.Duration())
	}
}

func TestReadPlainJSON(t *testing.T) {
	info, err := Read(strings.NewReader(sampleLottie))
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if info.Compressed {
		t.Fatal("expected uncompressed document")
	}
	if info.Version != "5.5.2" {
		t.Fatalf("version = %q", info.Version)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader(gzipped(t, "not json at all")))
	if !errors.Is(err, ErrNotLottie) {
		t.Fatalf("error = %v, want ErrNotLottie", err)
	}

	_, err = Read(strings.NewReader(`{"v":"5.5.2"}`))
	if !errors.Is(err, ErrNotLottie) {
		t.Fatalf("error = %v, want ErrNotLottie for header without canvas", err)
	}
}

func TestReadEmpty(t *testing.T) {
	if _, err := Read(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc123.tgs")
	if err := os.WriteFile(path, gzipped(t, sampleLottie), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	info, err := Probe(path)
	if err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	if info.FrameRate != 60 {
		t.Fatalf("frame rate = %v, want 60", info.FrameRate)
	}

	if _, err := Probe(filepath.Join(t.TempDir(), "missing.tgs")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
