package preview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"focusstack/internal/models"
	"focusstack/pkg/imageio"
)

type staticSource struct {
	img *models.RasterImage
	err error
}

func (s *staticSource) Snapshot() (*models.RasterImage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.img.Clone(), nil
}

type recordingRenderer struct {
	mu     sync.Mutex
	frames []*models.RasterImage
	fail   bool
}

func (r *recordingRenderer) RenderFrame(frame *models.RasterImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("display unavailable")
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func createGradient(width, height int) *models.RasterImage {
	img := models.NewRasterImage(width, height, models.FormatRGBA)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			p := img.Pixel(row, col)
			p[0], p[1], p[2], p[3] = uint8(col), uint8(row), 90, 255
		}
	}
	return img
}

// TestFileRenderer verifies frames are numbered and down-scaled
func TestFileRenderer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	r, err := NewFileRenderer(dir, 32)
	if err != nil {
		t.Fatalf("NewFileRenderer: %v", err)
	}

	img := createGradient(64, 48)
	for i := 0; i < 3; i++ {
		if err := r.RenderFrame(img); err != nil {
			t.Fatalf("RenderFrame %d: %v", i, err)
		}
	}
	if r.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", r.Frames())
	}

	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		frame, err := imageio.Load(path)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if frame.Width != 32 || frame.Height != 24 {
			t.Errorf("frame %d is %dx%d, want 32x24", i, frame.Width, frame.Height)
		}
	}
}

func TestScale(t *testing.T) {
	img := createGradient(20, 10)
	if got := Scale(img, 0); got != img {
		t.Error("maxWidth 0 should return the image unchanged")
	}
	if got := Scale(img, 40); got != img {
		t.Error("narrow image should be returned unchanged")
	}
	got := Scale(img, 10)
	if got.Width != 10 || got.Height != 5 || got.Format != models.FormatRGBA {
		t.Errorf("scaled to %dx%d %s, want 10x5 rgba", got.Width, got.Height, got.Format)
	}
}

// TestLoopRendersUntilCancelled verifies the loop renders periodically and
// returns cleanly on cancellation
func TestLoopRendersUntilCancelled(t *testing.T) {
	src := &staticSource{img: createGradient(8, 8)}
	r := &recordingRenderer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Loop(ctx, src, r, 5*time.Millisecond, nil)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for r.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Loop returned %v", err)
	}
	if r.count() < 3 {
		t.Errorf("rendered %d frames, want at least 3", r.count())
	}
}

func TestLoopSurvivesRenderFailures(t *testing.T) {
	src := &staticSource{img: createGradient(4, 4)}
	r := &recordingRenderer{fail: true}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := Loop(ctx, src, r, 5*time.Millisecond, nil); err != nil {
		t.Errorf("Loop returned %v, want nil", err)
	}
}

func TestLoopStopsOnSnapshotError(t *testing.T) {
	src := &staticSource{err: os.ErrClosed}
	err := Loop(context.Background(), src, &recordingRenderer{}, time.Millisecond, nil)
	if !errors.Is(err, os.ErrClosed) {
		t.Errorf("error = %v, want wrapped os.ErrClosed", err)
	}
}
