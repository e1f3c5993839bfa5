// Package imageio loads focus stacks from image files and saves composites.
//
// Decoding supports PNG, JPEG and GIF from the standard library, BMP, TIFF
// and WebP from golang.org/x/image, and TGA. Grayscale inputs stay single
// channel; everything else is converted to non-premultiplied RGBA.
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"focusstack/internal/models"
)

// decoders maps a lower-case file extension to its decoder. TGA files
// carry no magic number, so the format is taken from the extension rather
// than sniffed from the content.
var decoders = map[string]func(io.Reader) (image.Image, error){
	".png":  png.Decode,
	".jpg":  jpeg.Decode,
	".jpeg": jpeg.Decode,
	".gif":  gif.Decode,
	".bmp":  bmp.Decode,
	".tif":  tiff.Decode,
	".tiff": tiff.Decode,
	".webp": webp.Decode,
	".tga":  tga.Decode,
}

// decode picks the decoder by extension, falling back to content sniffing
// for unknown extensions
func decode(r io.Reader, path string) (image.Image, error) {
	if dec, ok := decoders[strings.ToLower(filepath.Ext(path))]; ok {
		return dec(r)
	}
	img, _, err := image.Decode(r)
	return img, err
}

// Load reads and decodes a single image file
func Load(path string) (*models.RasterImage, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	img, err := decode(bufio.NewReader(file), path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	return FromImage(img), nil
}

// LoadStack loads every path in order. All images must share the width,
// height and format of the first one; any failure discards the stack.
func LoadStack(paths []string) (models.ImageStack, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input images given")
	}

	stack := make(models.ImageStack, 0, len(paths))
	for i, path := range paths {
		img, err := Load(path)
		if err != nil {
			return nil, &LoadError{Path: path, Index: i, Err: err}
		}

		if i > 0 && !img.SameShape(stack[0]) {
			first := stack[0]
			return nil, &LoadError{Path: path, Index: i, Err: fmt.Errorf("%w: %dx%d %s, expected %dx%d %s",
				ErrMismatch, img.Width, img.Height, img.Format, first.Width, first.Height, first.Format)}
		}

		stack = append(stack, img)
	}

	return stack, nil
}

// FromImage converts a decoded image into a RasterImage
func FromImage(img image.Image) *models.RasterImage {
	bounds := img.Bounds()
	rect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	if gray, ok := img.(*image.Gray); ok {
		dst := image.NewGray(rect)
		xdraw.Copy(dst, image.Point{}, gray, bounds, xdraw.Src, nil)
		return &models.RasterImage{Width: rect.Dx(), Height: rect.Dy(), Format: models.FormatGray, Pix: dst.Pix}
	}

	dst := image.NewNRGBA(rect)
	if nrgba, ok := img.(*image.NRGBA); ok {
		// Straight copy keeps the exact channel values of translucent pixels
		for y := 0; y < rect.Dy(); y++ {
			start := nrgba.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], nrgba.Pix[start:start+dst.Stride])
		}
		return &models.RasterImage{Width: rect.Dx(), Height: rect.Dy(), Format: models.FormatRGBA, Pix: dst.Pix}
	}
	xdraw.Copy(dst, image.Point{}, img, bounds, xdraw.Src, nil)
	return &models.RasterImage{Width: rect.Dx(), Height: rect.Dy(), Format: models.FormatRGBA, Pix: dst.Pix}
}
