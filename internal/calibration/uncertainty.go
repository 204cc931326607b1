package calibration

import (
	"math"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

const (
	zScore95        = 1.96
	priorStrength   = 2.0
	neighbourRadius = 0.1
)

// BetaUncertainty summarises a confidence with a Beta posterior whose strength is
// the number of past samples predicted near the same value.
type BetaUncertainty struct{}

// Estimate returns {mean, std, lower, upper} centred on p.
func (BetaUncertainty) Estimate(p float64, samples []models.CalibrationSample) (models.ConfidenceEstimate, error) {
	p = clamp(p, 0, 1)
	n := priorStrength
	for _, s := range samples {
		if math.Abs(s.PredictedConfidence-p) <= neighbourRadius {
			n++
		}
	}
	alpha := p*n + 1
	beta := (1-p)*n + 1
	sum := alpha + beta
	std := math.Sqrt(alpha * beta / (sum * sum * (sum + 1)))
	if math.IsNaN(std) || math.IsInf(std, 0) {
		return models.ConfidenceEstimate{}, ErrNumeric
	}
	return models.ConfidenceEstimate{
		Mean:       p,
		Std:        std,
		LowerBound: clamp(p-zScore95*std, 0, 1),
		UpperBound: clamp(p+zScore95*std, 0, 1),
	}, nil
}

// Boost adds base + (max-base)*fit*quality to confidence, never exceeding 1.
func Boost(confidence float64, match models.BlueprintMatch, base, max float64) float64 {
	if max < base {
		max = base
	}
	boost := base + (max-base)*clamp(match.FitScore, 0, 1)*clamp(match.Quality, 0, 1)
	return clamp(confidence+boost, 0, 1)
}

func clamp(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
