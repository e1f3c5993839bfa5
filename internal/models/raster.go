package models

import (
	"fmt"
	"image"
)

// Format identifies the pixel layout of a RasterImage
type Format int

const (
	// FormatRGBA stores 4 bytes per pixel in R, G, B, A order
	FormatRGBA Format = iota

	// FormatGray stores a single intensity byte per pixel
	FormatGray
)

// Channels returns the number of bytes used by one pixel
func (f Format) Channels() int {
	if f == FormatGray {
		return 1
	}
	return 4
}

func (f Format) String() string {
	switch f {
	case FormatRGBA:
		return "rgba"
	case FormatGray:
		return "gray"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// RasterImage is an in-memory pixel buffer stored in row-major order
type RasterImage struct {
	// Width is the number of pixel columns
	Width int

	// Height is the number of pixel rows
	Height int

	// Format is the pixel layout of Pix
	Format Format

	// Pix holds Height rows of Width*Format.Channels() bytes each
	Pix []uint8
}

// NewRasterImage allocates a zeroed image of the given shape
func NewRasterImage(width, height int, format Format) *RasterImage {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &RasterImage{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]uint8, width*height*format.Channels()),
	}
}

// Stride returns the number of bytes in one row
func (r *RasterImage) Stride() int {
	return r.Width * r.Format.Channels()
}

// Offset returns the index in Pix of the first byte of pixel (row, col)
func (r *RasterImage) Offset(row, col int) int {
	return row*r.Stride() + col*r.Format.Channels()
}

// InBounds reports whether (row, col) addresses a pixel of the image
func (r *RasterImage) InBounds(row, col int) bool {
	return row >= 0 && row < r.Height && col >= 0 && col < r.Width
}

// Bounds returns the image rectangle with X as column and Y as row
func (r *RasterImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// Pixel returns the bytes of pixel (row, col). The slice aliases Pix.
func (r *RasterImage) Pixel(row, col int) []uint8 {
	off := r.Offset(row, col)
	return r.Pix[off : off+r.Format.Channels()]
}

// SameShape reports whether both images share width, height and format
func (r *RasterImage) SameShape(o *RasterImage) bool {
	return o != nil && r.Width == o.Width && r.Height == o.Height && r.Format == o.Format
}

// Clone returns a deep copy of the image
func (r *RasterImage) Clone() *RasterImage {
	pix := make([]uint8, len(r.Pix))
	copy(pix, r.Pix)
	return &RasterImage{Width: r.Width, Height: r.Height, Format: r.Format, Pix: pix}
}

// CopyRect copies the pixels of rect from src into r.
// Both images must share the same shape; rect is clipped to the image.
func (r *RasterImage) CopyRect(src *RasterImage, rect image.Rectangle) {
	rect = rect.Intersect(r.Bounds())
	if rect.Empty() {
		return
	}
	ch := r.Format.Channels()
	for row := rect.Min.Y; row < rect.Max.Y; row++ {
		start := r.Offset(row, rect.Min.X)
		end := start + rect.Dx()*ch
		copy(r.Pix[start:end], src.Pix[start:end])
	}
}

// ToImage converts the raster into a standard library image for encoding.
// The returned image owns a copy of the pixels.
func (r *RasterImage) ToImage() image.Image {
	rect := r.Bounds()
	if r.Format == FormatGray {
		img := image.NewGray(rect)
		copy(img.Pix, r.Pix)
		return img
	}
	img := image.NewNRGBA(rect)
	copy(img.Pix, r.Pix)
	return img
}
