// Package tgs reads the header of Telegram animated stickers: gzip-compressed
// Lottie JSON documents.
package tgs

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// maxDocumentBytes caps the decompressed document size.
const maxDocumentBytes = 16 << 20

var ErrNotLottie = errors.New("not a lottie document")

// Info is the subset of Lottie header fields used for logging and validation.
type Info struct {
	Version    string  `json:"v"`
	FrameRate  float64 `json:"fr"`
	InPoint    float64 `json:"ip"`
	OutPoint   float64 `json:"op"`
	Width      int     `json:"w"`
	Height     int     `json:"h"`
	Compressed bool    `json:"-"`
}

// Frames returns the number of animation frames.
func (i Info) Frames() float64 {
	return i.OutPoint - i.InPoint
}

// Duration returns the playback length, zero when the frame rate is unknown.
func (i Info) Duration() time.Duration {
	if i.FrameRate <= 0 {
		return 0
	}
	return time.Duration(i.Frames() / i.FrameRate * float64(time.Second))
}

// Probe reads the Lottie header of the file at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open animation: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read decodes a Lottie header from r, transparently handling gzip input.
func Read(r io.Reader) (Info, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return Info{}, fmt.Errorf("read animation header: %w", err)
	}

	var body io.Reader = br
	compressed := magic[0] == 0x1f && magic[1] == 0x8b
	if compressed {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return Info{}, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		body = zr
	}

	var info Info
	if err := json.NewDecoder(io.LimitReader(body, maxDocumentBytes)).Decode(&info); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrNotLottie, err)
	}
	if info.Width <= 0 || info.Height <= 0 || info.OutPoint <= info.InPoint {
		return Info{}, fmt.Errorf("%w: missing canvas or frame range", ErrNotLottie)
	}
	info.Compressed = compressed

	return info, nil
}
