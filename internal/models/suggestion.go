package models

import "time"

// SuggestionKind tells which payload a suggestion carries.
type SuggestionKind string

const (
	SuggestionSynergy SuggestionKind = "synergy"
	SuggestionPattern SuggestionKind = "pattern"
)

// Suggestion is a ranked, calibrated automation proposal ready for presentation.
type Suggestion struct {
	ID                string              `json:"id"`
	Kind              SuggestionKind      `json:"kind"`
	Synergy           *Synergy            `json:"synergy,omitempty"`
	Pattern           *Pattern            `json:"pattern,omitempty"`
	BaseConfidence    float64             `json:"base_confidence"`
	Confidence        float64             `json:"confidence"`
	Estimate          *ConfidenceEstimate `json:"estimate,omitempty"`
	Rationale         string              `json:"rationale"`
	Explanation       string              `json:"explanation,omitempty"`
	Blueprint         *BlueprintMatch     `json:"blueprint,omitempty"`
	QualityComponents map[string]float64  `json:"quality_components,omitempty"`
	Stages            *StageInputs        `json:"stages,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// Contradiction records inconsistent evidence between patterns.
type Contradiction struct {
	PatternID     string  `json:"pattern_id"`
	ConflictingID string  `json:"conflicting_id"`
	DeviceID      string  `json:"device_id"`
	Gap           float64 `json:"gap"`
	Reason        string  `json:"reason"`
}

// Reinforcement records evidence of one behaviour observed more than once.
type Reinforcement struct {
	PatternID string `json:"pattern_id"`
	OtherID   string `json:"other_id,omitempty"`
	DeviceID  string `json:"device_id"`
	Count     int    `json:"count"`
	Reason    string `json:"reason"`
}

// ValidationResult summarises cross-validation of a pattern set.
type ValidationResult struct {
	Contradictions []Contradiction `json:"contradictions"`
	Reinforcements []Reinforcement `json:"reinforcements"`
	QualityScore   float64         `json:"quality_score"`
}

// ReinforcementCount sums reinforcement weights.
func (v ValidationResult) ReinforcementCount() int {
	total := 0
	for _, r := range v.Reinforcements {
		if r.Count <= 0 {
			total++
			continue
		}
		total += r.Count
	}
	return total
}

// AnalysisResult is the output of one analysis run.
type AnalysisResult struct {
	RunID       string           `json:"run_id"`
	Patterns    []Pattern        `json:"patterns"`
	Validation  ValidationResult `json:"validation"`
	Synergies   []Synergy        `json:"synergies"`
	Suggestions []Suggestion     `json:"suggestions"`
	Degraded    []string         `json:"degraded,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
