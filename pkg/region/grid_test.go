package region

import (
	"image"
	"math/rand/v2"
	"sort"
	"testing"

	"focusstack/internal/models"
)

// TestGridCellOfClampsRemainder verifies that the last row and column of
// cells absorb the pixels left over by integer division
func TestGridCellOfClampsRemainder(t *testing.T) {
	g := NewGrid(10, 10, 4, 4) // cells of 2x2, last row/col are 4 wide

	cases := []struct {
		row, col, want int
	}{
		{0, 0, 0},
		{1, 1, 0},
		{2, 0, 4},
		{0, 9, 3},
		{9, 9, 15},
		{7, 6, 15},
		{5, 3, 9},
	}
	for _, c := range cases {
		if got := g.CellOf(c.row, c.col); got != c.want {
			t.Errorf("CellOf(%d,%d) = %d, want %d", c.row, c.col, got, c.want)
		}
	}

	if got := g.CellRect(15); got != image.Rect(6, 6, 10, 10) {
		t.Errorf("CellRect(15) = %v", got)
	}
}

// TestGridCellsPartitionImage checks every pixel belongs to exactly one cell
// and that CellOf agrees with CellRect
func TestGridCellsPartitionImage(t *testing.T) {
	for _, dims := range [][4]int{{10, 10, 4, 4}, {7, 13, 3, 5}, {3, 2, 8, 8}, {640, 480, 4, 4}} {
		g := NewGrid(dims[0], dims[1], dims[2], dims[3])
		owners := make([]int, dims[0]*dims[1])
		for id := 0; id < g.NumCells(); id++ {
			rect := g.CellRect(id)
			if rect.Empty() {
				t.Fatalf("grid %v: cell %d is empty", dims, id)
			}
			for y := rect.Min.Y; y < rect.Max.Y; y++ {
				for x := rect.Min.X; x < rect.Max.X; x++ {
					owners[y*dims[0]+x]++
					if got := g.CellOf(y, x); got != id {
						t.Fatalf("grid %v: CellOf(%d,%d) = %d, rect says %d", dims, y, x, got, id)
					}
				}
			}
		}
		for i, n := range owners {
			if n != 1 {
				t.Fatalf("grid %v: pixel %d covered %d times", dims, i, n)
			}
		}
	}
}

func TestGridCapsCellCounts(t *testing.T) {
	g := NewGrid(3, 2, 8, 8)
	if g.Rows != 2 || g.Cols != 3 {
		t.Errorf("grid should be capped to 2x3, got %dx%d", g.Rows, g.Cols)
	}

	g = NewGrid(5, 5, 0, -1)
	if g.Rows != 1 || g.Cols != 1 {
		t.Errorf("non-positive counts should become 1, got %dx%d", g.Rows, g.Cols)
	}
}

// TestLockSetCoversWindow checks that the union of the lock set's cells
// covers the clipped window and that ids are sorted and distinct
func TestLockSetCoversWindow(t *testing.T) {
	g := NewGrid(37, 29, 4, 5)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 2000; i++ {
		w := models.NewWindow(rng.IntN(45)-4, rng.IntN(45)-4, 1+2*rng.IntN(7))
		clipped := w.Clip(g.Width, g.Height)
		ids := g.WindowLockSet(w)

		if clipped.Empty() {
			if len(ids) != 0 {
				t.Fatalf("window %+v outside image got lock set %v", w, ids)
			}
			continue
		}
		if len(ids) == 0 {
			t.Fatalf("window %+v got an empty lock set", w)
		}
		if !sort.IntsAreSorted(ids) {
			t.Fatalf("lock set %v is not ascending", ids)
		}
		for j := 1; j < len(ids); j++ {
			if ids[j] == ids[j-1] {
				t.Fatalf("lock set %v has duplicates", ids)
			}
		}

		locked := make(map[int]bool, len(ids))
		for _, id := range ids {
			locked[id] = true
		}
		for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
			for x := clipped.Min.X; x < clipped.Max.X; x++ {
				if !locked[g.CellOf(y, x)] {
					t.Fatalf("pixel (%d,%d) of window %+v is outside lock set %v", y, x, w, ids)
				}
			}
		}
		// Every locked cell must actually intersect the window
		for _, id := range ids {
			if g.CellRect(id).Intersect(clipped).Empty() {
				t.Fatalf("cell %d in lock set does not intersect %v", id, clipped)
			}
		}
	}
}

func TestRowBand(t *testing.T) {
	g := NewGrid(4, 10, 3, 1)
	want := [][2]int{{0, 3}, {3, 6}, {6, 10}}
	for r, w := range want {
		start, end := g.RowBand(r)
		if start != w[0] || end != w[1] {
			t.Errorf("RowBand(%d) = [%d,%d), want [%d,%d)", r, start, end, w[0], w[1])
		}
	}
}
