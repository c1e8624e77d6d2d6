package render

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// Encode writes img in the given format, png or jpeg.
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case FormatPNG:
		return png.Encode(w, img)

	case FormatJPEG, "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{
			Quality: 98,
		})

	default:
		return fmt.Errorf("invalid image format: %s", format)
	}
}

// WriteFile encodes img to path, appending the format extension when path
// has none.
func WriteFile(path string, img image.Image, format string) (written string, err error) {
	if filepath.Ext(path) == "" {
		path = fmt.Sprintf("%s.%s", path, strings.ToLower(format))
	}

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating image file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = Encode(out, img, format); err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}
	return path, nil
}
