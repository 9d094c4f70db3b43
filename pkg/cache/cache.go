// Package cache maps content keys to produced gif files in one flat directory.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	ExtGIF  = "gif"
	ExtTGS  = "tgs"
	ExtWebP = "webp"
)

// symbolNamespace seeds name-based UUIDs for symbol keys so the same text maps
// to the same key across processes and hosts.
var symbolNamespace = uuid.MustParse("6f1c3a52-3d8e-4b8b-9a57-2f0f6c1d7e11")

var stickerNamespace = uuid.MustParse("b3e0d4a1-7c25-4f6e-8d19-54a2c8e9f073")

// hashedKeyPrefix marks hashed sticker keys. '+' never appears in a flat id.
const hashedKeyPrefix = "h+"

// Key is a deterministic content identifier used for lookups and file names.
type Key string

// StickerKey derives a key from the platform-assigned unique sticker id. Ids
// outside [A-Za-z0-9_-] are hashed so distinct ids never share a file.
func StickerKey(uniqueID string) Key {
	trimmed := strings.TrimSpace(uniqueID)
	if isFlat(trimmed) {
		return Key(trimmed)
	}
	return Key(hashedKeyPrefix + uuid.NewSHA1(stickerNamespace, []byte(trimmed)).String())
}

// SymbolKey derives a key from the symbol text.
func SymbolKey(symbol string) Key {
	return Key(uuid.NewSHA1(symbolNamespace, []byte(symbol)).String())
}

// isFlat reports whether raw can be used as a file stem unchanged.
func isFlat(raw string) bool {
	if raw == "" {
		return false
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Cache is a read-only view over the gif directory. Existing artifacts are authoritative.
type Cache struct {
	dir string
}

// New resolves dir and creates it when missing.
func New(dir string) (*Cache, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, errors.New("cache directory is required")
	}

	expanded, err := expandHome(trimmed)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &Cache{dir: absPath}, nil
}

// Dir returns the absolute cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Lookup returns the cached gif for key when it exists as a regular file.
func (c *Cache) Lookup(key Key) (string, bool) {
	path := c.OutputPath(key)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	return path, true
}

// OutputPath is where the final gif for key lives.
func (c *Cache) OutputPath(key Key) string {
	return c.StagingPath(key, ExtGIF)
}

// StagingPath is where source bytes for key are materialized before conversion.
func (c *Cache) StagingPath(key Key, ext string) string {
	return filepath.Join(c.dir, string(key)+"."+ext)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], string(filepath.Separator))), nil
}
