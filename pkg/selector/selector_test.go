package selector

import (
	"testing"

	"focusstack/internal/models"
)

// createGrayImage builds a grayscale image from a pattern function
func createGrayImage(width, height int, pattern func(row, col int) uint8) *models.RasterImage {
	img := models.NewRasterImage(width, height, models.FormatGray)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			img.Pix[img.Offset(row, col)] = pattern(row, col)
		}
	}
	return img
}

func uniform(v uint8) func(int, int) uint8 {
	return func(int, int) uint8 { return v }
}

func checker(row, col int) uint8 {
	if (row+col)%2 == 0 {
		return 0
	}
	return 255
}

func TestSelectBestEmptyStack(t *testing.T) {
	if _, ok := SelectBest(nil, models.NewWindow(0, 0, 3)); ok {
		t.Error("empty stack should report no selection")
	}
}

// TestSelectBestSingleImage checks that a lone image always wins
func TestSelectBestSingleImage(t *testing.T) {
	stack := models.ImageStack{createGrayImage(6, 6, checker)}
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			idx, ok := SelectBest(stack, models.NewWindow(row, col, 3))
			if !ok || idx != 0 {
				t.Fatalf("window (%d,%d): got %d, %v; want 0, true", row, col, idx, ok)
			}
		}
	}
}

// TestSelectBestStrictMaximum places the sharp image at every position in the stack
func TestSelectBestStrictMaximum(t *testing.T) {
	for sharp := 0; sharp < 3; sharp++ {
		stack := make(models.ImageStack, 3)
		for i := range stack {
			if i == sharp {
				stack[i] = createGrayImage(5, 5, checker)
			} else {
				stack[i] = createGrayImage(5, 5, func(row, _ int) uint8 { return uint8(100 + row) })
			}
		}

		sel, ok := Best(stack, models.NewWindow(2, 2, 3))
		if !ok || sel.Index != sharp {
			t.Errorf("sharp image %d: selected %d", sharp, sel.Index)
		}
		if sel.Contrast != 255 {
			t.Errorf("winning contrast = %v, want 255", sel.Contrast)
		}
	}
}

// TestSelectBestTieGoesToLowestIndex checks determinism on equal contrast
func TestSelectBestTieGoesToLowestIndex(t *testing.T) {
	stack := models.ImageStack{
		createGrayImage(4, 4, uniform(10)),
		createGrayImage(4, 4, checker),
		createGrayImage(4, 4, func(row, col int) uint8 { return 255 - checker(row, col) }),
	}

	for i := 0; i < 50; i++ {
		idx, _ := SelectBest(stack, models.NewWindow(1, 1, 3))
		if idx != 1 {
			t.Fatalf("iteration %d: tie between 1 and 2 resolved to %d, want 1", i, idx)
		}
	}

	flat := models.ImageStack{createGrayImage(4, 4, uniform(128)), createGrayImage(4, 4, uniform(50))}
	if idx, _ := SelectBest(flat, models.NewWindow(2, 2, 3)); idx != 0 {
		t.Errorf("all-zero contrast tie resolved to %d, want 0", idx)
	}
}
