package models

import "fmt"

// ImageStack is an ordered set of pixel-aligned source images. The index of
// an image is its identity. A stack is never mutated once built and may be
// read from any number of goroutines without locking.
type ImageStack []*RasterImage

// Len returns the number of images in the stack
func (s ImageStack) Len() int {
	return len(s)
}

// Validate checks that the stack is non-empty and that every image shares
// the width, height and format of the first one
func (s ImageStack) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("image stack is empty")
	}
	first := s[0]
	if first == nil {
		return fmt.Errorf("image 0 is nil")
	}
	for i, img := range s[1:] {
		if !first.SameShape(img) {
			if img == nil {
				return fmt.Errorf("image %d is nil", i+1)
			}
			return fmt.Errorf("image %d is %dx%d %s, expected %dx%d %s",
				i+1, img.Width, img.Height, img.Format, first.Width, first.Height, first.Format)
		}
	}
	return nil
}

// Shape returns the width, height and format shared by the stack.
// It must only be called on a validated stack.
func (s ImageStack) Shape() (width, height int, format Format) {
	return s[0].Width, s[0].Height, s[0].Format
}
