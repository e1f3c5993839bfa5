package region

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"focusstack/internal/models"
)

// LockOrderingViolation reports a region lock that could not be acquired
// within the configured bound, or a lock set that was not in ascending
// order. Either indicates a defect in lock ordering and is fatal.
type LockOrderingViolation struct {
	// Cells is the lock set being acquired
	Cells []int

	// Cell is the id that could not be acquired
	Cell int

	// Waited is how long the acquisition waited before giving up
	Waited time.Duration

	Err error
}

func (e *LockOrderingViolation) Error() string {
	return fmt.Sprintf("lock ordering violation on cell %d of %v after %s: %v", e.Cell, e.Cells, e.Waited, e.Err)
}

func (e *LockOrderingViolation) Unwrap() error {
	return e.Err
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithAcquireTimeout bounds how long a single cell acquisition may wait.
// Exceeding it yields a LockOrderingViolation. Zero waits forever.
//
// WithAllLocked holds every cell for as long as its callback runs, so the
// bound must exceed the longest such callback (e.g. a full-image copy), or
// waiting behind it is reported as a violation.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// Coordinator grants exclusive access to the output pixels covered by a
// window by locking every grid cell the window touches. Cells are always
// acquired in ascending id order and released in reverse, so two callers
// whose windows share cells cannot wait on each other in a cycle.
//
// A 1x1 grid degenerates into a single global lock.
type Coordinator struct {
	grid    *Grid
	cells   []*semaphore.Weighted
	timeout time.Duration
}

// NewCoordinator creates one lock per grid cell
func NewCoordinator(grid *Grid, opts ...Option) *Coordinator {
	c := &Coordinator{
		grid:  grid,
		cells: make([]*semaphore.Weighted, grid.NumCells()),
	}
	for i := range c.cells {
		c.cells[i] = semaphore.NewWeighted(1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewGlobalCoordinator creates a coordinator with one lock for the whole image
func NewGlobalCoordinator(width, height int, opts ...Option) *Coordinator {
	return NewCoordinator(NewGrid(width, height, 1, 1), opts...)
}

// Grid returns the partition the coordinator locks over
func (c *Coordinator) Grid() *Grid {
	return c.grid
}

// WithLockedWindow runs fn with exclusive access to every output pixel the
// window covers. fn receives the window clipped to the image and must not
// write outside it. fn is not called for an empty window.
func (c *Coordinator) WithLockedWindow(w models.Window, fn func(rect image.Rectangle)) error {
	return c.WithLockedRect(w.Rect(), fn)
}

// WithLockedRect is WithLockedWindow for an arbitrary rectangle
func (c *Coordinator) WithLockedRect(rect image.Rectangle, fn func(rect image.Rectangle)) error {
	clipped := rect.Intersect(image.Rect(0, 0, c.grid.Width, c.grid.Height))
	if clipped.Empty() {
		return nil
	}
	return c.withCells(c.grid.LockSet(clipped), func() { fn(clipped) })
}

// WithAllLocked runs fn while holding every cell, e.g. to copy a
// consistent snapshot of the output
func (c *Coordinator) WithAllLocked(fn func()) error {
	ids := make([]int, len(c.cells))
	for i := range ids {
		ids[i] = i
	}
	return c.withCells(ids, fn)
}

func (c *Coordinator) withCells(ids []int, fn func()) error {
	if !sort.IntsAreSorted(ids) {
		return &LockOrderingViolation{Cells: ids, Cell: -1, Err: fmt.Errorf("lock set is not in ascending order")}
	}

	for i, id := range ids {
		if err := c.acquire(id); err != nil {
			c.release(ids[:i])
			var v *LockOrderingViolation
			if errors.As(err, &v) {
				v.Cells = ids
			}
			return err
		}
	}
	defer c.release(ids)

	fn()
	return nil
}

func (c *Coordinator) acquire(id int) error {
	if c.timeout <= 0 {
		// Background never expires, so Acquire cannot fail
		return c.cells[id].Acquire(context.Background(), 1)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.cells[id].Acquire(ctx, 1); err != nil {
		return &LockOrderingViolation{Cell: id, Waited: time.Since(start), Err: err}
	}
	return nil
}

// release frees cells in reverse acquisition order
func (c *Coordinator) release(ids []int) {
	for i := len(ids) - 1; i >= 0; i-- {
		c.cells[ids[i]].Release(1)
	}
}
