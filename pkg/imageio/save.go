package imageio

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"focusstack/internal/models"
)

// Save encodes img to path. The encoder is chosen by extension: .png (or
// no extension), .jpg and .jpeg, .bmp, .tif and .tiff, and .tga. Any other
// extension fails with ErrUnsupportedFormat before the file is created.
// Missing parent directories are created.
func Save(path string, img *models.RasterImage) error {
	if !SupportedOutput(path) {
		return &SaveError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &SaveError{Path: path, Err: err}
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}

	if err := encode(file, path, img.ToImage()); err != nil {
		file.Close()
		return &SaveError{Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	return nil
}

// SupportedOutput reports whether Save has an encoder for path's extension
func SupportedOutput(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", "", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".tga":
		return true
	default:
		return false
	}
}

func encode(w io.Writer, path string, img image.Image) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case ".tga":
		return tga.Encode(w, img)
	case ".png", "":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
