package calibration

import (
	"context"
	"sort"
	"sync"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

const weightEpsilon = 0.01

// Persister durably records calibration samples.
type Persister interface {
	SaveSample(ctx context.Context, sample models.CalibrationSample) error
	LoadSamples(ctx context.Context, limit int) ([]models.CalibrationSample, error)
}

// Store owns the calibration sample log, the recent error windows per quality model
// and the ensemble weights derived from them.
type Store struct {
	mu         sync.RWMutex
	samples    []models.CalibrationSample
	maxSamples int
	window     int
	errors     map[string]*utils.RollingWindow
	weights    map[string]float64
}

// NewStore creates a Store retaining up to maxSamples samples and the last window
// errors per model.
func NewStore(maxSamples, window int) *Store {
	if maxSamples <= 0 {
		maxSamples = 5000
	}
	if window <= 0 {
		window = 10
	}
	return &Store{
		maxSamples: maxSamples,
		window:     window,
		errors:     make(map[string]*utils.RollingWindow),
		weights:    make(map[string]float64),
	}
}

// Append adds a sample and returns the log size.
func (s *Store) Append(sample models.CalibrationSample) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	if len(s.samples) > s.maxSamples {
		s.samples = append([]models.CalibrationSample(nil), s.samples[len(s.samples)-s.maxSamples:]...)
	}
	return len(s.samples)
}

// Load replaces the log, used when restoring from a Persister.
func (s *Store) Load(samples []models.CalibrationSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]models.CalibrationSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RecordedAt.Before(sorted[j].RecordedAt) })
	if len(sorted) > s.maxSamples {
		sorted = sorted[len(sorted)-s.maxSamples:]
	}
	s.samples = sorted
}

// Samples returns a copy of the log.
func (s *Store) Samples() []models.CalibrationSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CalibrationSample(nil), s.samples...)
}

// Len reports the log size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// ObserveErrors appends one absolute error per model and recomputes the weights as
// 1/(mean recent error + eps), normalised to sum to one.
func (s *Store) ObserveErrors(errs map[string]float64) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for model, e := range errs {
		w, ok := s.errors[model]
		if !ok {
			w = utils.NewRollingWindow(s.window)
			s.errors[model] = w
		}
		w.Observe(e)
	}

	raw := make(map[string]float64, len(s.errors))
	total := 0.0
	for model, w := range s.errors {
		mean, ok := w.Mean()
		if !ok {
			continue
		}
		raw[model] = 1 / (mean + weightEpsilon)
		total += raw[model]
	}
	s.weights = make(map[string]float64, len(raw))
	for model, v := range raw {
		s.weights[model] = v / total
	}
	return copyWeights(s.weights)
}

// Weights returns the current ensemble weights; empty until the first feedback.
func (s *Store) Weights() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyWeights(s.weights)
}

// RecentErrors returns the error window of model.
func (s *Store) RecentErrors(model string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.errors[model]
	if !ok {
		return nil
	}
	return w.Values()
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
