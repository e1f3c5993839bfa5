package compositor

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/stat"

	"focusstack/pkg/selector"
)

// contrastBins quantises winning contrast to whole intensity levels
const contrastBins = 256

// Stats summarises a compositing run
type Stats struct {
	// Windows is the number of windows evaluated
	Windows int64

	// PixelsWritten counts pixel copies into the output, including rewrites
	PixelsWritten int64

	// Wins is the number of windows won by each source image
	Wins []int64

	// Shares is Wins normalised to sum to 1
	Shares []float64

	// SelectionEntropy is the Shannon entropy (nats) of Shares. 0 means a
	// single image won everywhere; log(N) means wins were spread evenly.
	SelectionEntropy float64

	// MeanContrast and ContrastStdDev describe the winning contrast
	MeanContrast   float64
	ContrastStdDev float64
}

// collector accumulates statistics from all workers without locking
type collector struct {
	windows  atomic.Int64
	pixels   atomic.Int64
	rows     atomic.Int64
	wins     []atomic.Int64
	contrast [contrastBins]atomic.Int64
}

func newCollector(numImages int) *collector {
	return &collector{wins: make([]atomic.Int64, numImages)}
}

func (c *collector) record(sel selector.Selection, pixels int) {
	c.windows.Add(1)
	c.pixels.Add(int64(pixels))
	c.wins[sel.Index].Add(1)

	bin := int(math.Floor(sel.Contrast))
	if bin < 0 {
		bin = 0
	} else if bin >= contrastBins {
		bin = contrastBins - 1
	}
	c.contrast[bin].Add(1)
}

func (c *collector) summary() Stats {
	st := Stats{
		Windows:       c.windows.Load(),
		PixelsWritten: c.pixels.Load(),
		Wins:          make([]int64, len(c.wins)),
		Shares:        make([]float64, len(c.wins)),
	}

	var total int64
	for i := range c.wins {
		st.Wins[i] = c.wins[i].Load()
		total += st.Wins[i]
	}
	if total == 0 {
		return st
	}
	for i, n := range st.Wins {
		st.Shares[i] = float64(n) / float64(total)
	}
	st.SelectionEntropy = stat.Entropy(st.Shares)

	levels := make([]float64, contrastBins)
	weights := make([]float64, contrastBins)
	var weightSum float64
	for i := range levels {
		levels[i] = float64(i)
		weights[i] = float64(c.contrast[i].Load())
		weightSum += weights[i]
	}
	if weightSum > 1 {
		st.MeanContrast, st.ContrastStdDev = stat.MeanStdDev(levels, weights)
	} else if weightSum == 1 {
		st.MeanContrast = stat.Mean(levels, weights)
	}

	return st
}
