package region

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"focusstack/internal/models"
)

// TestWithLockedWindowPassesClippedRect verifies fn only sees in-bounds pixels
func TestWithLockedWindowPassesClippedRect(t *testing.T) {
	c := NewCoordinator(NewGrid(8, 8, 2, 2))

	var got image.Rectangle
	err := c.WithLockedWindow(models.NewWindow(0, 0, 11), func(rect image.Rectangle) {
		got = rect
	})
	if err != nil {
		t.Fatalf("WithLockedWindow: %v", err)
	}
	if got != image.Rect(0, 0, 6, 6) {
		t.Errorf("clipped rect = %v, want (0,0)-(6,6)", got)
	}

	called := false
	if err := c.WithLockedWindow(models.NewWindow(50, 50, 3), func(image.Rectangle) { called = true }); err != nil {
		t.Fatalf("empty window: %v", err)
	}
	if called {
		t.Error("fn should not run for a window outside the image")
	}
}

// TestCoordinatorReleasesLocks checks that every cell is free after a call
func TestCoordinatorReleasesLocks(t *testing.T) {
	c := NewCoordinator(NewGrid(16, 16, 4, 4), WithAcquireTimeout(50*time.Millisecond))

	for i := 0; i < 3; i++ {
		if err := c.WithLockedWindow(models.NewWindow(8, 8, 11), func(image.Rectangle) {}); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if err := c.WithAllLocked(func() {}); err != nil {
		t.Fatalf("all cells should be free: %v", err)
	}
}

// TestCoordinatorTimeoutIsViolation holds a cell from outside and expects the
// bounded acquisition to report a lock ordering violation
func TestCoordinatorTimeoutIsViolation(t *testing.T) {
	c := NewCoordinator(NewGrid(8, 8, 2, 2), WithAcquireTimeout(20*time.Millisecond))

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = c.WithLockedRect(image.Rect(4, 4, 5, 5), func(image.Rectangle) {
			close(held)
			<-done
		})
	}()
	<-held
	defer close(done)

	err := c.WithLockedWindow(models.NewWindow(4, 4, 5), func(image.Rectangle) {
		t.Error("fn must not run without all locks")
	})
	var violation *LockOrderingViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected LockOrderingViolation, got %v", err)
	}
	if violation.Cell != 3 {
		t.Errorf("violation on cell %d, want 3", violation.Cell)
	}

	// Cells acquired before the failing one must have been released
	if err := c.WithLockedRect(image.Rect(0, 0, 1, 1), func(image.Rectangle) {}); err != nil {
		t.Errorf("cell 0 should have been released: %v", err)
	}
}

// TestCoordinatorMutualExclusion hammers overlapping windows from many
// goroutines; a lost update or a deadlock fails the test
func TestCoordinatorMutualExclusion(t *testing.T) {
	const (
		workers = 8
		rounds  = 500
	)
	c := NewCoordinator(NewGrid(32, 32, 4, 4), WithAcquireTimeout(5*time.Second))
	counts := make([]int, 32*32)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				// Windows straddle cell boundaries in different directions
				win := models.NewWindow((w*7+i*3)%32, (w*11+i*5)%32, 9)
				err := c.WithLockedWindow(win, func(rect image.Rectangle) {
					for y := rect.Min.Y; y < rect.Max.Y; y++ {
						for x := rect.Min.X; x < rect.Max.X; x++ {
							counts[y*32+x]++
						}
					}
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	// Recompute the expected totals serially
	want := make([]int, 32*32)
	for w := 0; w < workers; w++ {
		for i := 0; i < rounds; i++ {
			rect := models.NewWindow((w*7+i*3)%32, (w*11+i*5)%32, 9).Clip(32, 32)
			for y := rect.Min.Y; y < rect.Max.Y; y++ {
				for x := rect.Min.X; x < rect.Max.X; x++ {
					want[y*32+x]++
				}
			}
		}
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("pixel %d written %d times, want %d", i, counts[i], want[i])
		}
	}
}

func TestGlobalCoordinatorSingleCell(t *testing.T) {
	c := NewGlobalCoordinator(100, 50)
	if c.Grid().NumCells() != 1 {
		t.Fatalf("global coordinator has %d cells", c.Grid().NumCells())
	}
	if ids := c.Grid().WindowLockSet(models.NewWindow(25, 50, 11)); len(ids) != 1 || ids[0] != 0 {
		t.Errorf("lock set = %v, want [0]", ids)
	}
}
