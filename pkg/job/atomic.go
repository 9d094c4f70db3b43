package job

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PlaceholderGIF is a 1x1 white GIF89a delivered when an animation cannot be converted.
var PlaceholderGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61,
	0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00,
	0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00,
	0x21, 0xF9, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x2C, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
	0x02, 0x02, 0x44, 0x01, 0x00,
	0x3B,
}

// WritePlaceholder replaces path with PlaceholderGIF.
func WritePlaceholder(path string) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(PlaceholderGIF)
		return err
	})
}

// writeAtomic writes through a temp file in the target directory and renames it
// into place, so readers only ever observe complete files.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}

// gifPath swaps the extension of a staged source for .gif.
func gifPath(source string) string {
	ext := filepath.Ext(source)
	return source[:len(source)-len(ext)] + ".gif"
}
