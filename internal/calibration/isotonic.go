package calibration

import (
	"sort"
	"sync"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// unfittedShrink is applied until enough samples exist to learn a mapping.
const unfittedShrink = 0.95

// Isotonic is a monotonic remap of predicted confidence onto observed acceptance,
// fitted with pool-adjacent-violators.
type Isotonic struct {
	mu         sync.RWMutex
	minSamples int
	xs         []float64
	ys         []float64
}

// NewIsotonic returns an unfitted calibrator that fits once minSamples samples exist.
func NewIsotonic(minSamples int) *Isotonic {
	if minSamples <= 0 {
		minSamples = 10
	}
	return &Isotonic{minSamples: minSamples}
}

// Fitted reports whether a mapping has been learned.
func (c *Isotonic) Fitted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.xs) > 0
}

// Fit learns the mapping from samples; fewer than minSamples leaves it unchanged.
func (c *Isotonic) Fit(samples []models.CalibrationSample) bool {
	if len(samples) < c.minSamples {
		return false
	}
	points := make([]models.CalibrationSample, len(samples))
	copy(points, samples)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].StatisticalInput() < points[j].StatisticalInput()
	})

	type block struct {
		sumX, sumY, n float64
	}
	blocks := make([]block, 0, len(points))
	for _, s := range points {
		blocks = append(blocks, block{sumX: clamp(s.StatisticalInput(), 0, 1), sumY: s.OutcomeValue(), n: 1})
		for len(blocks) > 1 {
			last, prev := blocks[len(blocks)-1], blocks[len(blocks)-2]
			if prev.sumY/prev.n < last.sumY/last.n {
				break
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, block{sumX: prev.sumX + last.sumX, sumY: prev.sumY + last.sumY, n: prev.n + last.n})
		}
	}

	xs := make([]float64, len(blocks))
	ys := make([]float64, len(blocks))
	for i, b := range blocks {
		xs[i] = b.sumX / b.n
		ys[i] = b.sumY / b.n
	}

	c.mu.Lock()
	c.xs, c.ys = xs, ys
	c.mu.Unlock()
	return true
}

// Calibrate maps p through the fitted step function, interpolating between block
// centres. Unfitted calibrators shrink p by a fixed factor.
func (c *Isotonic) Calibrate(p float64) float64 {
	p = clamp(p, 0, 1)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.xs) == 0 {
		return p * unfittedShrink
	}
	if p <= c.xs[0] {
		return c.ys[0]
	}
	last := len(c.xs) - 1
	if p >= c.xs[last] {
		return c.ys[last]
	}
	i := sort.SearchFloat64s(c.xs, p)
	x0, x1 := c.xs[i-1], c.xs[i]
	y0, y1 := c.ys[i-1], c.ys[i]
	if x1 == x0 {
		return y1
	}
	return clamp(y0+(y1-y0)*(p-x0)/(x1-x0), 0, 1)
}
