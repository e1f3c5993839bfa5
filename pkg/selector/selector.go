// Package selector picks, for a window, the source image of a focus stack
// that is sharpest at that location.
package selector

import (
	"focusstack/internal/models"
	"focusstack/pkg/sharpness"
)

// Selection is the outcome of comparing every image of a stack at one window
type Selection struct {
	// Index is the position of the winning image in the stack
	Index int

	// Contrast is the winning image's sharpness score
	Contrast float64
}

// Best evaluates the contrast of every image at the same window and returns
// the strict maximum. Ties go to the lowest index. ok is false only when the
// stack is empty. Best never mutates the stack and needs no locking.
func Best(stack models.ImageStack, w models.Window) (sel Selection, ok bool) {
	if len(stack) == 0 {
		return Selection{}, false
	}

	sel = Selection{Index: 0, Contrast: sharpness.Contrast(stack[0], w)}
	for i := 1; i < len(stack); i++ {
		contrast := sharpness.Contrast(stack[i], w)
		if contrast > sel.Contrast {
			sel = Selection{Index: i, Contrast: contrast}
		}
	}
	return sel, true
}

// SelectBest returns the index of the sharpest image at the window
func SelectBest(stack models.ImageStack, w models.Window) (int, bool) {
	sel, ok := Best(stack, w)
	return sel.Index, ok
}
