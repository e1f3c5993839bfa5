package imageio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped when an input path does not exist
	ErrNotFound = errors.New("image not found")

	// ErrDecode is wrapped when an input file cannot be decoded
	ErrDecode = errors.New("malformed image")

	// ErrMismatch is wrapped when a stack image differs in shape from the first
	ErrMismatch = errors.New("image does not match the stack")

	// ErrUnsupportedFormat is wrapped when an output extension has no encoder
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// LoadError reports why one image of a stack could not be loaded.
// A failed load aborts the whole stack.
type LoadError struct {
	Path  string
	Index int
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load image %d (%s): %v", e.Index, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SaveError reports a failure to persist an image. The in-memory image is
// unaffected.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save image %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}
