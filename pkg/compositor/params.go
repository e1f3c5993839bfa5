package compositor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"focusstack/internal/models"
)

// ErrInvalidParams is wrapped by every parameter validation failure
var ErrInvalidParams = errors.New("invalid compositing parameters")

// Policy selects how work is assigned to workers
type Policy string

const (
	// PolicyStatic splits the image into one contiguous row band per worker
	// and visits every pixel exactly once
	PolicyStatic Policy = "static"

	// PolicyRandom samples random window centres until the run is stopped
	PolicyRandom Policy = "random"
)

// Scope selects where a random-sampling worker draws its window centres
type Scope string

const (
	// ScopeImage samples centres anywhere in the image
	ScopeImage Scope = "image"

	// ScopeBand samples centres inside the worker's own row band. The
	// windows themselves may still reach into neighbouring bands.
	ScopeBand Scope = "band"
)

// Params holds the compositing parameters
type Params struct {
	// NumWorkers is the number of concurrent worker goroutines
	NumWorkers int

	// Policy is the work assignment policy
	Policy Policy

	// WindowSize is the odd side length of the sharpness window
	WindowSize int

	// GridRows and GridCols size the region lock grid used by the random
	// policy. A 1x1 grid is a single global lock. The static policy always
	// uses one region per row band.
	GridRows int
	GridCols int

	// Scope restricts where random-sampling workers pick window centres
	Scope Scope

	// Seed initialises the per-worker random generators
	Seed uint64

	// LockTimeout bounds a single region lock acquisition. Exceeding it is
	// reported as a lock ordering violation. Zero waits forever.
	LockTimeout time.Duration

	// Initial, when set, is copied into the output before the run starts,
	// e.g. to resume from a checkpoint. It must match the stack's shape.
	// Otherwise the output starts as a copy of the first stack image.
	Initial *models.RasterImage

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// DefaultParams returns the parameters of the original fine-grained
// random-sampling variant: 11x11 windows over a 4x4 lock grid
func DefaultParams() *Params {
	return &Params{
		NumWorkers: 4,
		Policy:     PolicyRandom,
		WindowSize: 11,
		GridRows:   4,
		GridCols:   4,
		Scope:      ScopeImage,
	}
}

// Validate checks the parameters independently of any image stack
func (p *Params) Validate() error {
	if p.NumWorkers < 1 {
		return fmt.Errorf("%w: number of workers must be at least 1, got %d", ErrInvalidParams, p.NumWorkers)
	}
	switch p.Policy {
	case PolicyStatic, PolicyRandom:
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidParams, p.Policy)
	}
	if p.WindowSize < 1 || p.WindowSize%2 == 0 {
		return fmt.Errorf("%w: window size must be a positive odd number, got %d", ErrInvalidParams, p.WindowSize)
	}
	if p.Policy == PolicyRandom {
		if p.GridRows < 1 || p.GridCols < 1 {
			return fmt.Errorf("%w: lock grid must be at least 1x1, got %dx%d", ErrInvalidParams, p.GridRows, p.GridCols)
		}
		switch p.Scope {
		case ScopeImage, ScopeBand:
		default:
			return fmt.Errorf("%w: unknown sampling scope %q", ErrInvalidParams, p.Scope)
		}
	}
	if p.LockTimeout < 0 {
		return fmt.Errorf("%w: lock timeout must not be negative", ErrInvalidParams)
	}
	return nil
}
