// Package preview periodically renders the output image while a
// compositing run is in progress.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nfnt/resize"

	"focusstack/internal/logging"
	"focusstack/internal/models"
	"focusstack/pkg/imageio"
)

// Renderer displays or records one preview frame. It is the seam between
// the compositor and whatever front end shows progress.
type Renderer interface {
	RenderFrame(frame *models.RasterImage) error
}

// Source yields consistent copies of an image that is being written
// concurrently. compositor.Scheduler satisfies it.
type Source interface {
	Snapshot() (*models.RasterImage, error)
}

// FileRenderer writes every frame as a numbered PNG in Dir, down-scaled to
// at most MaxWidth pixels wide
type FileRenderer struct {
	Dir      string
	MaxWidth int

	mu     sync.Mutex
	frames int
}

// NewFileRenderer creates the output directory and returns a renderer for it
func NewFileRenderer(dir string, maxWidth int) (*FileRenderer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating preview directory: %w", err)
	}
	return &FileRenderer{Dir: dir, MaxWidth: maxWidth}, nil
}

// RenderFrame saves frame as the next numbered PNG
func (r *FileRenderer) RenderFrame(frame *models.RasterImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Scale(frame, r.MaxWidth)
	filename := filepath.Join(r.Dir, fmt.Sprintf("frame_%04d.png", r.frames))
	if err := imageio.Save(filename, out); err != nil {
		return err
	}
	r.frames++
	return nil
}

// Frames returns the number of frames written so far
func (r *FileRenderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Scale returns img shrunk to maxWidth pixels wide, keeping the aspect
// ratio. Images already narrow enough, or a non-positive maxWidth, are
// returned unchanged.
func Scale(img *models.RasterImage, maxWidth int) *models.RasterImage {
	if maxWidth <= 0 || img.Width <= maxWidth {
		return img
	}
	scaled := resize.Resize(uint(maxWidth), 0, img.ToImage(), resize.Bicubic)
	return imageio.FromImage(scaled)
}

// Loop renders a snapshot of src every interval until ctx is done. Render
// failures are logged and the loop carries on; a failing snapshot ends it.
func Loop(ctx context.Context, src Source, r Renderer, interval time.Duration, logger *slog.Logger) error {
	logger = logging.OrNop(logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := src.Snapshot()
		if err != nil {
			return fmt.Errorf("preview snapshot failed: %w", err)
		}
		if err := r.RenderFrame(frame); err != nil {
			logger.Warn("preview frame dropped", "error", err)
			continue
		}
		logger.Debug("preview frame rendered", "width", frame.Width, "height", frame.Height)
	}
}
