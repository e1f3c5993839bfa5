// Package sharpness measures local focus quality as the min-max range of
// grayscale intensity inside a window.
package sharpness

import (
	"focusstack/internal/models"
)

// Intensity converts pixel (row, col) to a grayscale value in [0, 255].
// RGBA pixels use the mean of R, G and B; alpha is ignored.
func Intensity(img *models.RasterImage, row, col int) float64 {
	px := img.Pixel(row, col)
	if img.Format == models.FormatGray {
		return float64(px[0])
	}
	return (float64(px[0]) + float64(px[1]) + float64(px[2])) / 3.0
}

// Contrast returns max(intensity) - min(intensity) over the in-bounds pixels
// of the window. Out-of-bounds offsets are skipped rather than read as zero.
// An empty window, or one lying entirely outside the image, scores 0.
func Contrast(img *models.RasterImage, w models.Window) float64 {
	rect := w.Clip(img.Width, img.Height)
	if rect.Empty() {
		return 0
	}

	minGray, maxGray := 255.0, 0.0
	for row := rect.Min.Y; row < rect.Max.Y; row++ {
		for col := rect.Min.X; col < rect.Max.X; col++ {
			gray := Intensity(img, row, col)
			if gray < minGray {
				minGray = gray
			}
			if gray > maxGray {
				maxGray = gray
			}
		}
	}

	return maxGray - minGray
}
