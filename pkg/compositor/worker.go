package compositor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"

	"focusstack/internal/models"
	"focusstack/pkg/selector"
)

// WorkerState is the lifecycle stage of a single worker
type WorkerState int32

const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerCompleted
	WorkerCancelled
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerCompleted:
		return "completed"
	case WorkerCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("worker-state(%d)", int32(s))
	}
}

// worker owns everything it mutates: its random generator and its state.
// The stack, output and coordinator are shared with the other workers.
type worker struct {
	id    int
	sched *Scheduler

	// rows [start, end) of the worker's band
	start, end int

	rng    *rand.Rand
	logger *slog.Logger
	state  atomic.Int32
}

func (s *Scheduler) newWorker(id int) *worker {
	w := &worker{
		id:     id,
		sched:  s,
		rng:    rand.New(rand.NewPCG(s.params.Seed, uint64(id))),
		logger: s.logger.With("worker", id),
	}

	switch {
	case id < s.bands.Rows:
		w.start, w.end = s.bands.RowBand(id)
	case s.params.Policy == PolicyRandom:
		// More workers than rows: share bands round-robin
		w.start, w.end = s.bands.RowBand(id % s.bands.Rows)
	default:
		// A static worker without a band has nothing to visit
		w.start, w.end = 0, 0
	}
	return w
}

// State returns the worker's lifecycle stage
func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

func (w *worker) run(ctx context.Context) error {
	w.setState(WorkerRunning)
	w.logger.Debug("worker started", "rows", fmt.Sprintf("[%d,%d)", w.start, w.end))

	var err error
	if w.sched.params.Policy == PolicyStatic {
		err = w.runStatic(ctx)
	} else {
		err = w.runRandom(ctx)
	}

	if err != nil {
		w.setState(WorkerCancelled)
		w.logger.Error("worker failed", "error", err)
		return err
	}
	w.logger.Debug("worker stopped", "state", w.State().String())
	return nil
}

// runStatic visits every pixel of the band once. The window only measures
// sharpness; just the centre pixel is written, so writes never leave the
// band. Selections for a row are computed lock-free, then the row is
// written under the band's lock.
func (w *worker) runStatic(ctx context.Context) error {
	s := w.sched
	width := s.output.Width
	size := s.params.WindowSize
	winners := make([]int, width)

	for row := w.start; row < w.end; row++ {
		if ctx.Err() != nil {
			w.setState(WorkerCancelled)
			return nil
		}

		for col := 0; col < width; col++ {
			sel, _ := selector.Best(s.stack, models.NewWindow(row, col, size))
			winners[col] = sel.Index
			s.stats.record(sel, 1)
		}

		err := s.coord.WithLockedRect(image.Rect(0, row, width, row+1), func(rect image.Rectangle) {
			for col := rect.Min.X; col < rect.Max.X; col++ {
				copy(s.output.Pixel(row, col), s.stack[winners[col]].Pixel(row, col))
			}
		})
		if err != nil {
			return err
		}
		s.stats.rows.Add(1)
	}

	w.setState(WorkerCompleted)
	return nil
}

// runRandom samples window centres until the context is cancelled, copying
// the whole clipped window from the sharpest image each time
func (w *worker) runRandom(ctx context.Context) error {
	s := w.sched
	width := s.output.Width
	size := s.params.WindowSize

	rowStart, rowSpan := 0, s.output.Height
	if s.params.Scope == ScopeBand {
		rowStart, rowSpan = w.start, w.end-w.start
	}

	for {
		if ctx.Err() != nil {
			w.setState(WorkerCancelled)
			return nil
		}

		win := models.NewWindow(rowStart+w.rng.IntN(rowSpan), w.rng.IntN(width), size)
		sel, _ := selector.Best(s.stack, win)

		written := 0
		err := s.coord.WithLockedWindow(win, func(rect image.Rectangle) {
			s.output.CopyRect(s.stack[sel.Index], rect)
			written = rect.Dx() * rect.Dy()
		})
		if err != nil {
			return err
		}
		s.stats.record(sel, written)
	}
}
