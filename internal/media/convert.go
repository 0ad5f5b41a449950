package media

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/avif"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ErrUnsupportedFormat is returned for images Telegram cannot display and we cannot convert.
var ErrUnsupportedFormat = errors.New("unsupported image format")

const jpegQuality = 90

type decodeFunc func(io.Reader) (image.Image, error)

var decoders = map[string]decodeFunc{
	".avif": avif.Decode,
	".tif":  tiff.Decode,
	".tiff": tiff.Decode,
	".bmp":  bmp.Decode,
	".webp": webp.Decode,
}

var unsupported = map[string]bool{
	".svg": true,
}

// Converter re-encodes images Telegram does not accept as JPEG.
type Converter struct {
	tmpDir string
}

// NewConverter creates a converter writing into tmpDir.
func NewConverter(tmpDir string) (*Converter, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media tmp dir %s: %w", tmpDir, err)
	}
	return &Converter{tmpDir: tmpDir}, nil
}

// Normalize returns an asset Telegram can display. Assets in a supported format
// are returned unchanged; others are converted into a new temporary JPEG file.
func (c *Converter) Normalize(a Asset) (Asset, error) {
	ext := strings.ToLower(filepath.Ext(a.Path))
	if unsupported[ext] {
		return Asset{}, fmt.Errorf("%s: %w", a.Path, ErrUnsupportedFormat)
	}
	decode, ok := decoders[ext]
	if !ok {
		return a, nil
	}

	src, err := os.Open(a.Path)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to open %s: %w", a.Path, err)
	}
	defer src.Close()

	img, err := decode(src)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to decode %s: %w", a.Path, err)
	}

	dst, err := os.CreateTemp(c.tmpDir, "forumgram-*.jpg")
	if err != nil {
		return Asset{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := jpeg.Encode(dst, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return Asset{}, fmt.Errorf("failed to encode %s as jpeg: %w", a.Path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return Asset{}, fmt.Errorf("failed to write %s: %w", dst.Name(), err)
	}
	return Asset{Path: dst.Name(), Kind: KindPhoto, Converted: true}, nil
}

// Cleanup removes the temporary files among assets.
func Cleanup(assets []Asset) {
	for _, a := range assets {
		if !a.Converted {
			continue
		}
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("[Media] Failed to remove converted file %s: %v", a.Path, err)
		}
	}
}
