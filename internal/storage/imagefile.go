package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultImagePath is the fixed file the most recently generated image is written to.
const DefaultImagePath = "generated_image.jpg"

// ImageFile persists generated images to a single fixed path. Every save replaces the
// previous file; there is no rotation or cleanup.
type ImageFile struct {
	path string
}

// NewImageFile creates an ImageFile writing to path. An empty path selects
// DefaultImagePath.
func NewImageFile(path string) *ImageFile {
	if path == "" {
		path = DefaultImagePath
	}
	return &ImageFile{path: path}
}

// Path returns the file location.
func (f *ImageFile) Path() string {
	return f.path
}

// Save encodes img (PNG for a .png path, JPEG otherwise) and atomically replaces the file.
// It returns the path written.
func (f *ImageFile) Save(img image.Image) (string, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".generated-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encode(tmp, f.path, img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return "", fmt.Errorf("failed to replace image file: %w", err)
	}

	log.Info().Str("path", f.path).Msg("generated image saved")
	return f.path, nil
}

func encode(w io.Writer, path string, img image.Image) error {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return png.Encode(w, img)
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: jpeg.DefaultQuality})
}

// ReadImage returns the raw bytes of a persisted image.
func ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// DecodeImage decodes raw image bytes in any registered format.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
