package calibration

import (
	"errors"
	"math"
	"sync"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// ErrNumeric reports a non-finite model output.
var ErrNumeric = errors.New("calibrator produced a non-finite value")

const logitEdge = 1e-4

// OnlineCalibrator is a logistic model over [1, p, logit p] nudged towards each
// batch of outcomes. It starts at the identity map and passes values through until
// its first batch.
type OnlineCalibrator struct {
	mu           sync.Mutex
	weights      [3]float64
	pending      []models.CalibrationSample
	minBatch     int
	learningRate float64
	trained      bool
	updates      int
}

// NewOnlineCalibrator creates a calibrator updating every minBatch samples.
func NewOnlineCalibrator(minBatch int, learningRate float64) *OnlineCalibrator {
	if minBatch <= 0 {
		minBatch = 5
	}
	if learningRate <= 0 {
		learningRate = 0.05
	}
	return &OnlineCalibrator{
		weights:      [3]float64{0, 0, 1},
		minBatch:     minBatch,
		learningRate: learningRate,
	}
}

func features(p float64) [3]float64 {
	q := clamp(p, logitEdge, 1-logitEdge)
	return [3]float64{1, p, math.Log(q / (1 - q))}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Calibrate applies the model; untrained models return p unchanged.
func (c *OnlineCalibrator) Calibrate(p float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.trained {
		return p, nil
	}
	x := features(p)
	z := c.weights[0]*x[0] + c.weights[1]*x[1] + c.weights[2]*x[2]
	out := sigmoid(z)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return p, ErrNumeric
	}
	return out, nil
}

// Observe buffers a sample and takes one gradient step once a batch is complete.
// The step direction is the reward signal: accepted pulls the prediction up,
// rejected pulls it down.
func (c *OnlineCalibrator) Observe(sample models.CalibrationSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, sample)
	if len(c.pending) < c.minBatch {
		return nil
	}

	var grad [3]float64
	for _, s := range c.pending {
		x := features(s.OnlineInput())
		z := c.weights[0]*x[0] + c.weights[1]*x[1] + c.weights[2]*x[2]
		residual := s.OutcomeValue() - sigmoid(z)
		for i := range grad {
			grad[i] += residual * x[i]
		}
	}
	next := c.weights
	n := float64(len(c.pending))
	for i := range next {
		next[i] += c.learningRate * grad[i] / n
		if math.IsNaN(next[i]) || math.IsInf(next[i], 0) {
			c.pending = c.pending[:0]
			return ErrNumeric
		}
	}
	c.weights = next
	c.pending = c.pending[:0]
	c.trained = true
	c.updates++
	return nil
}

// Trained reports whether at least one batch has been applied.
func (c *OnlineCalibrator) Trained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trained
}
