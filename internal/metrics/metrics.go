package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels analyses that completed with every dependency available.
	OutcomeSuccess = "success"
	// OutcomeDegraded labels analyses that completed on fallback data.
	OutcomeDegraded = "degraded"
	// OutcomeError labels aborted analyses.
	OutcomeError = "error"

	// FeedbackAccepted and FeedbackRejected label recorded feedback.
	FeedbackAccepted = "accepted"
	FeedbackRejected = "rejected"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_synergy",
			Name:      "analyses_total",
			Help:      "Total number of analysis runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_synergy",
			Name:      "analysis_seconds",
			Help:      "Analysis latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)

	patternsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_synergy",
			Name:      "patterns_emitted_total",
			Help:      "Patterns surviving deduplication and validation, by pattern type.",
		},
		[]string{"type"},
	)

	synergiesEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_synergy",
			Name:      "synergies_emitted_total",
			Help:      "Synergies emitted by the detector, by synergy type.",
		},
		[]string{"type"},
	)

	feedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_synergy",
			Name:      "feedback_total",
			Help:      "Feedback events recorded, by outcome.",
		},
		[]string{"outcome"},
	)

	upstreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_synergy",
			Name:      "upstream_failures_total",
			Help:      "Failed calls to external collaborators that fell back to defaults.",
		},
		[]string{"dependency"},
	)

	calibrationWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mirador_synergy",
			Name:      "calibration_weight",
			Help:      "Current ensemble weight per quality model.",
		},
		[]string{"model"},
	)
)

// Register attaches mirador-synergy collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		patternsEmitted,
		synergiesEmitted,
		feedbackTotal,
		upstreamFailures,
		calibrationWeight,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeDegraded:
	default:
		outcome = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// AddPatterns counts emitted patterns of one type.
func AddPatterns(patternType string, n int) {
	if n > 0 {
		patternsEmitted.WithLabelValues(patternType).Add(float64(n))
	}
}

// AddSynergies counts emitted synergies of one type.
func AddSynergies(synergyType string, n int) {
	if n > 0 {
		synergiesEmitted.WithLabelValues(synergyType).Add(float64(n))
	}
}

// ObserveFeedback counts a recorded feedback event.
func ObserveFeedback(accepted bool) {
	if accepted {
		feedbackTotal.WithLabelValues(FeedbackAccepted).Inc()
		return
	}
	feedbackTotal.WithLabelValues(FeedbackRejected).Inc()
}

// UpstreamFailure counts a failed call to dependency.
func UpstreamFailure(dependency string) {
	upstreamFailures.WithLabelValues(dependency).Inc()
}

// SetCalibrationWeights publishes the ensemble weights.
func SetCalibrationWeights(weights map[string]float64) {
	for model, w := range weights {
		calibrationWeight.WithLabelValues(model).Set(w)
	}
}
