package models

import "image"

// Window is a square neighbourhood centred on a pixel, used both to
// measure local sharpness and as the unit of a block copy
type Window struct {
	CenterRow int
	CenterCol int

	// Size is the side length; it is expected to be odd. Size 0 is empty.
	Size int
}

// NewWindow creates a window centred on (row, col)
func NewWindow(row, col, size int) Window {
	return Window{CenterRow: row, CenterCol: col, Size: size}
}

// Empty reports whether the window covers no pixel at all
func (w Window) Empty() bool {
	return w.Size <= 0
}

// Rect returns the unclipped extent of the window, X as column and Y as row,
// with Max exclusive
func (w Window) Rect() image.Rectangle {
	if w.Empty() {
		return image.Rectangle{}
	}
	half := w.Size / 2
	return image.Rect(w.CenterCol-half, w.CenterRow-half, w.CenterCol+half+1, w.CenterRow+half+1)
}

// Clip returns the part of the window that lies inside a width x height image
func (w Window) Clip(width, height int) image.Rectangle {
	return w.Rect().Intersect(image.Rect(0, 0, width, height))
}
