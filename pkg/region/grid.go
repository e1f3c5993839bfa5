// Package region partitions an output image into a fixed grid of cells and
// coordinates exclusive access to those cells.
package region

import (
	"image"

	"focusstack/internal/models"
)

// Grid is a fixed Rows x Cols partition of a Width x Height image.
// Cell ids are row-major: id = r*Cols + c. Every pixel belongs to exactly
// one cell; the last row and column of cells absorb the remainder.
type Grid struct {
	Width  int
	Height int
	Rows   int
	Cols   int

	cellHeight int
	cellWidth  int
}

// NewGrid creates a grid of at most rows x cols cells. The counts are capped
// at the image height and width so that no cell is empty, and raised to 1.
func NewGrid(width, height, rows, cols int) *Grid {
	rows = clamp(rows, 1, max(height, 1))
	cols = clamp(cols, 1, max(width, 1))

	return &Grid{
		Width:      width,
		Height:     height,
		Rows:       rows,
		Cols:       cols,
		cellHeight: max(height/rows, 1),
		cellWidth:  max(width/cols, 1),
	}
}

// NumCells returns the number of cells in the grid
func (g *Grid) NumCells() int {
	return g.Rows * g.Cols
}

// cellRow maps a pixel row to a grid row, clamping into the last row
func (g *Grid) cellRow(row int) int {
	return clamp(row/g.cellHeight, 0, g.Rows-1)
}

// cellCol maps a pixel column to a grid column, clamping into the last column
func (g *Grid) cellCol(col int) int {
	return clamp(col/g.cellWidth, 0, g.Cols-1)
}

// CellOf returns the id of the cell that owns pixel (row, col)
func (g *Grid) CellOf(row, col int) int {
	return g.cellRow(row)*g.Cols + g.cellCol(col)
}

// CellRect returns the pixel rectangle owned by a cell, X as column and Y as row
func (g *Grid) CellRect(id int) image.Rectangle {
	r, c := id/g.Cols, id%g.Cols

	y0 := r * g.cellHeight
	y1 := y0 + g.cellHeight
	if r == g.Rows-1 {
		y1 = g.Height
	}

	x0 := c * g.cellWidth
	x1 := x0 + g.cellWidth
	if c == g.Cols-1 {
		x1 = g.Width
	}

	return image.Rect(x0, y0, x1, y1)
}

// RowBand returns the range of pixel rows [start, end) covered by grid row r
func (g *Grid) RowBand(r int) (start, end int) {
	rect := g.CellRect(r * g.Cols)
	return rect.Min.Y, rect.Max.Y
}

// LockSet returns, in ascending order, the ids of every cell intersecting
// rect after clipping it to the image. The set is empty only when the
// clipped rectangle is.
func (g *Grid) LockSet(rect image.Rectangle) []int {
	rect = rect.Intersect(image.Rect(0, 0, g.Width, g.Height))
	if rect.Empty() {
		return nil
	}

	r0, r1 := g.cellRow(rect.Min.Y), g.cellRow(rect.Max.Y-1)
	c0, c1 := g.cellCol(rect.Min.X), g.cellCol(rect.Max.X-1)

	// Row-major iteration yields ids in ascending order
	ids := make([]int, 0, (r1-r0+1)*(c1-c0+1))
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			ids = append(ids, r*g.Cols+c)
		}
	}
	return ids
}

// WindowLockSet returns the lock set of a window's clipped bounding box
func (g *Grid) WindowLockSet(w models.Window) []int {
	return g.LockSet(w.Rect())
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
