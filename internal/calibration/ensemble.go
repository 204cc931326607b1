package calibration

import "github.com/miradorstack/mirador-synergy/internal/models"

// Quality models blended by the ensemble.
const (
	ModelConfidence = "confidence"
	ModelFrequency  = "frequency"
	ModelLift       = "lift"
	ModelValidation = "validation"
)

// QualityModels lists the ensemble members in a fixed order.
var QualityModels = []string{ModelConfidence, ModelFrequency, ModelLift, ModelValidation}

// EnsembleQualityScorer blends per-model quality predictions with weights learned
// from how well each model predicted past outcomes.
type EnsembleQualityScorer struct {
	store *Store
}

// NewEnsembleQualityScorer binds the scorer to the store holding its weights.
func NewEnsembleQualityScorer(store *Store) *EnsembleQualityScorer {
	return &EnsembleQualityScorer{store: store}
}

// Score returns the weighted quality of the supplied components; missing
// components are skipped.
func (e *EnsembleQualityScorer) Score(components map[string]float64) (float64, bool) {
	weights := e.Weights()
	total, mass := 0.0, 0.0
	for _, model := range QualityModels {
		v, ok := components[model]
		if !ok {
			continue
		}
		w := weights[model]
		total += w * clamp(v, 0, 1)
		mass += w
	}
	if mass == 0 {
		return 0, false
	}
	return total / mass, true
}

// Weights returns the current weights over every quality model. A model without
// feedback yet keeps the uniform prior 1/N; learned weights share the mass left
// over in proportion to their accuracy.
func (e *EnsembleQualityScorer) Weights() map[string]float64 {
	learned := e.store.Weights()
	prior := 1 / float64(len(QualityModels))
	seen := 0
	for _, m := range QualityModels {
		if _, ok := learned[m]; ok {
			seen++
		}
	}
	out := make(map[string]float64, len(QualityModels))
	for _, m := range QualityModels {
		if w, ok := learned[m]; ok {
			out[m] = w * float64(seen) * prior
		} else {
			out[m] = prior
		}
	}
	return out
}

// Update records each model's error against the outcome and returns the new weights.
func (e *EnsembleQualityScorer) Update(components map[string]float64, outcome bool) map[string]float64 {
	y := models.CalibrationSample{Outcome: outcome}.OutcomeValue()
	errs := make(map[string]float64, len(components))
	for _, model := range QualityModels {
		v, ok := components[model]
		if !ok {
			continue
		}
		diff := clamp(v, 0, 1) - y
		if diff < 0 {
			diff = -diff
		}
		errs[model] = diff
	}
	if len(errs) == 0 {
		return e.Weights()
	}
	e.store.ObserveErrors(errs)
	return e.Weights()
}
