package models

import "time"

// TimeRange bounds the event window for analysis.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AnalysisRequest parameterises one analysis run. Zero values fall back to configuration.
type AnalysisRequest struct {
	TimeRange          TimeRange `json:"time_range"`
	MinSupport         int       `json:"min_support,omitempty"`
	MinSupportRatio    float64   `json:"min_support_ratio,omitempty"`
	MinConfidence      float64   `json:"min_confidence,omitempty"`
	IncludeUncertainty bool      `json:"include_uncertainty,omitempty"`
	Areas              []string  `json:"areas,omitempty"`
}
