package models

import "time"

// CalibrationSample pairs a predicted confidence with the user's decision.
type CalibrationSample struct {
	SuggestionID        string             `json:"suggestion_id"`
	PredictedConfidence float64            `json:"predicted_confidence"`
	Outcome             bool               `json:"actual_outcome"`
	Features            map[string]float64 `json:"features,omitempty"`
	Stages              *StageInputs       `json:"stages,omitempty"`
	RecordedAt          time.Time          `json:"recorded_at"`
}

// StageInputs records the value each learning stage was given when a confidence
// was issued.
type StageInputs struct {
	Statistical float64 `json:"statistical"`
	Online      float64 `json:"online"`
}

// StatisticalInput is the value the isotonic stage mapped. Samples recorded
// without stage inputs fall back to the issued confidence.
func (s CalibrationSample) StatisticalInput() float64 {
	if s.Stages == nil {
		return s.PredictedConfidence
	}
	return s.Stages.Statistical
}

// OnlineInput is the value the online stage mapped.
func (s CalibrationSample) OnlineInput() float64 {
	if s.Stages == nil {
		return s.PredictedConfidence
	}
	return s.Stages.Online
}

// OutcomeValue maps accepted/rejected to 1/0.
func (s CalibrationSample) OutcomeValue() float64 {
	if s.Outcome {
		return 1
	}
	return 0
}

// Feedback is a user's reaction to an issued suggestion.
type Feedback struct {
	SuggestionID string    `json:"suggestion_id"`
	Accepted     bool      `json:"accepted"`
	Rating       int       `json:"rating,omitempty"`
	Text         string    `json:"text,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// FeedbackAck confirms a recorded feedback event.
type FeedbackAck struct {
	SuggestionID string `json:"suggestion_id"`
	Recorded     bool   `json:"recorded"`
	Samples      int    `json:"samples"`
}

// ConfidenceEstimate is a distribution summary of a calibrated confidence.
type ConfidenceEstimate struct {
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}
