// Package compositor drives a pool of workers that composite the sharpest
// pixels of a focus stack into a single shared output image.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"focusstack/internal/logging"
	"focusstack/internal/models"
	"focusstack/pkg/region"
)

// ErrAlreadyStarted is returned when Run is called more than once
var ErrAlreadyStarted = errors.New("scheduler already started")

// State is the lifecycle stage of a Scheduler
type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateAwaitingCompletion
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingCompletion:
		return "awaiting-completion"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scheduler partitions or samples the compositing work across a fixed pool
// of workers. The source stack is shared read-only; the output image is
// only ever written through the region lock coordinator.
//
// Lifecycle: Idle -> Dispatching -> AwaitingCompletion -> Finished. Finished
// is entered when every static worker completes, or once a stop request has
// cancelled and joined all workers.
type Scheduler struct {
	params *Params
	stack  models.ImageStack
	output *models.RasterImage
	coord  *region.Coordinator

	// bands is the row partition, one band per worker
	bands *region.Grid

	workers []*worker
	stats   *collector
	logger  *slog.Logger

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	elapsed  atomic.Int64
}

// NewScheduler validates the stack and parameters and prepares the output
// image and workers. No goroutine is started until Run.
func NewScheduler(stack models.ImageStack, params *Params) (*Scheduler, error) {
	if params == nil {
		params = DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := stack.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	width, height, _ := stack.Shape()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: images are empty (%dx%d)", ErrInvalidParams, width, height)
	}

	var output *models.RasterImage
	if params.Initial != nil {
		if !params.Initial.SameShape(stack[0]) {
			return nil, fmt.Errorf("%w: initial image does not match the stack shape", ErrInvalidParams)
		}
		output = params.Initial.Clone()
	} else {
		output = stack[0].Clone()
	}

	// Bands double as the lock grid of the static policy: each worker only
	// ever writes inside its own band, so its single lock is uncontended
	// among workers yet still excludes concurrent snapshots.
	bands := region.NewGrid(width, height, params.NumWorkers, 1)

	var opts []region.Option
	if params.LockTimeout > 0 {
		opts = append(opts, region.WithAcquireTimeout(params.LockTimeout))
	}
	var coord *region.Coordinator
	if params.Policy == PolicyStatic {
		coord = region.NewCoordinator(bands, opts...)
	} else {
		coord = region.NewCoordinator(region.NewGrid(width, height, params.GridRows, params.GridCols), opts...)
	}

	s := &Scheduler{
		params: params,
		stack:  stack,
		output: output,
		coord:  coord,
		bands:  bands,
		stats:  newCollector(len(stack)),
		logger: logging.OrNop(params.Logger),
		stop:   make(chan struct{}),
	}

	s.workers = make([]*worker, params.NumWorkers)
	for i := range s.workers {
		s.workers[i] = s.newWorker(i)
	}

	return s, nil
}

// Run dispatches the workers and blocks until they have all finished.
// With the static policy that happens once every band is done; with the
// random policy only once ctx is cancelled or RequestStop is called.
// A stop is not an error. A lock ordering violation in any worker stops
// the others and is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateDispatching)) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	width, height, format := s.stack.Shape()
	s.logger.Info("dispatching workers",
		"policy", s.params.Policy,
		"workers", len(s.workers),
		"images", len(s.stack),
		"width", width,
		"height", height,
		"format", format.String(),
		"window", s.params.WindowSize,
		"regions", s.coord.Grid().NumCells(),
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		g.Go(func() error {
			return w.run(gctx)
		})
	}
	s.state.Store(int32(StateAwaitingCompletion))

	err := g.Wait()
	s.elapsed.Store(int64(time.Since(start)))
	s.state.Store(int32(StateFinished))

	stats := s.Stats()
	s.logger.Info("workers joined",
		"completed", s.Completed(),
		"windows", stats.Windows,
		"pixels", stats.PixelsWritten,
		"elapsed", s.Elapsed().Round(time.Millisecond),
	)

	if err != nil {
		return fmt.Errorf("compositing failed: %w", err)
	}
	return nil
}

// RequestStop asks every worker to finish its current window and exit.
// It is safe to call at any time and more than once; a stop requested
// before Run makes Run return as soon as the workers observe it.
func (s *Scheduler) RequestStop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// State returns the current lifecycle stage
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// WorkerStates returns the current state of every worker, by worker id
func (s *Scheduler) WorkerStates() []WorkerState {
	states := make([]WorkerState, len(s.workers))
	for i, w := range s.workers {
		states[i] = w.State()
	}
	return states
}

// Completed reports whether every worker exhausted its assigned work.
// It is only ever true for the static policy.
func (s *Scheduler) Completed() bool {
	for _, w := range s.workers {
		if w.State() != WorkerCompleted {
			return false
		}
	}
	return true
}

// Iterations returns the number of windows processed so far
func (s *Scheduler) Iterations() int64 {
	return s.stats.windows.Load()
}

// Progress returns the fraction of rows finished by static workers, in [0, 1]
func (s *Scheduler) Progress() float64 {
	return float64(s.stats.rows.Load()) / float64(s.output.Height)
}

// Elapsed returns the wall time of the last Run
func (s *Scheduler) Elapsed() time.Duration {
	return time.Duration(s.elapsed.Load())
}

// Snapshot returns a consistent copy of the output. It may be called while
// workers are running; it briefly holds every region lock.
func (s *Scheduler) Snapshot() (*models.RasterImage, error) {
	var snap *models.RasterImage
	if err := s.coord.WithAllLocked(func() {
		snap = s.output.Clone()
	}); err != nil {
		return nil, err
	}
	return snap, nil
}

// Output returns the output buffer itself. It must only be used once Run
// has returned; while workers run, use Snapshot.
func (s *Scheduler) Output() *models.RasterImage {
	return s.output
}

// Stats returns the compositing statistics gathered so far
func (s *Scheduler) Stats() Stats {
	return s.stats.summary()
}
