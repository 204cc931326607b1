package utils

import (
	"sort"
	"sync"
)

// RollingWindow keeps the most recent samples and answers summary queries.
type RollingWindow struct {
	mu      sync.RWMutex
	samples []float64
	maxSize int
}

// NewRollingWindow creates a window storing up to maxSize samples.
func NewRollingWindow(maxSize int) *RollingWindow {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &RollingWindow{maxSize: maxSize}
}

// Observe records a new sample, evicting the oldest when full.
func (w *RollingWindow) Observe(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, v)
	if len(w.samples) > w.maxSize {
		copy(w.samples[0:], w.samples[len(w.samples)-w.maxSize:])
		w.samples = w.samples[:w.maxSize]
	}
}

// Mean returns the average of the retained samples; ok is false when empty.
func (w *RollingWindow) Mean() (mean float64, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.samples) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range w.samples {
		sum += s
	}
	return sum / float64(len(w.samples)), true
}

// Percentile returns the percentile (0-100) sample. Returns zero if no samples.
func (w *RollingWindow) Percentile(p float64) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), w.samples...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := int((p / 100.0) * float64(len(sorted)-1))
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// Count returns number of samples retained.
func (w *RollingWindow) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}

// Values returns a copy of the retained samples, oldest first.
func (w *RollingWindow) Values() []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]float64(nil), w.samples...)
}

// Reset replaces the window contents, keeping only the newest maxSize values.
func (w *RollingWindow) Reset(values []float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(values) > w.maxSize {
		values = values[len(values)-w.maxSize:]
	}
	w.samples = append([]float64(nil), values...)
}
