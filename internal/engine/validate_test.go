package engine

import (
	"testing"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

func coPattern(id, trigger, action string, confidence float64) models.Pattern {
	return models.Pattern{
		ID:           id,
		Type:         models.PatternCoOccurrence,
		DeviceID:     action,
		CoOccurrence: &models.CoOccurrence{Trigger: trigger, Action: action, Confidence: confidence},
		Confidence:   confidence,
		Occurrences:  12,
	}
}

func slotPattern(id, device string, hour, minute int, confidence float64) models.Pattern {
	return models.Pattern{
		ID:          id,
		Type:        models.PatternTimeOfDay,
		DeviceID:    device,
		TimeOfDay:   &models.TimeOfDay{Hour: hour, Minute: minute, Occurrences: 6, TotalOccurrences: 10},
		Confidence:  confidence,
		Occurrences: 6,
	}
}

func TestCrossValidatorContradiction(t *testing.T) {
	v := NewCrossValidator(nil, ValidatorOptions{})
	list := []models.Pattern{
		coPattern("co-1", "binary_sensor.door", "light.hall", 0.95),
		slotPattern("tod-1", "light.hall", 19, 0, 0.3),
		slotPattern("tod-2", "binary_sensor.door", 8, 0, 0.6),
	}
	result := v.Validate(list)
	if len(result.Contradictions) != 1 {
		t.Fatalf("expected one contradiction, got %+v", result.Contradictions)
	}
	c := result.Contradictions[0]
	if c.PatternID != "co-1" || c.ConflictingID != "tod-1" || c.DeviceID != "light.hall" {
		t.Fatalf("unexpected contradiction %+v", c)
	}
	if c.Gap < 0.64 || c.Gap > 0.66 {
		t.Fatalf("expected gap 0.65, got %f", c.Gap)
	}
	if result.QualityScore >= 0.5 {
		t.Fatalf("contradictions should pull quality below neutral, got %f", result.QualityScore)
	}
}

func TestCrossValidatorIgnoresModerateConfidence(t *testing.T) {
	v := NewCrossValidator(nil, ValidatorOptions{})
	result := v.Validate([]models.Pattern{
		coPattern("co-1", "binary_sensor.door", "light.hall", 0.85),
		slotPattern("tod-1", "light.hall", 19, 0, 0.1),
	})
	if len(result.Contradictions) != 0 {
		t.Fatalf("pattern below the high-confidence bar cannot contradict: %+v", result.Contradictions)
	}
	if result.QualityScore != 0.5 {
		t.Fatalf("expected neutral quality, got %f", result.QualityScore)
	}
}

func TestCrossValidatorReinforcements(t *testing.T) {
	merged := slotPattern("tod-m", "light.bedroom", 22, 0, 0.8)
	merged.Metadata = map[string]any{"merged_count": 3}
	list := []models.Pattern{
		merged,
		slotPattern("tod-a", "cover.living", 23, 55, 0.5),
		slotPattern("tod-b", "cover.living", 0, 5, 0.4),
		slotPattern("tod-c", "cover.living", 12, 0, 0.4),
	}
	result := NewCrossValidator(nil, ValidatorOptions{}).Validate(list)
	if got := result.ReinforcementCount(); got != 3 {
		t.Fatalf("expected 3 reinforcements, got %d (%+v)", got, result.Reinforcements)
	}
	if len(result.Contradictions) != 0 {
		t.Fatalf("unexpected contradictions %+v", result.Contradictions)
	}
	// 0.5 + 0.5*3/4
	if result.QualityScore != 0.875 {
		t.Fatalf("expected quality 0.875, got %f", result.QualityScore)
	}
}

func TestQualityScoreDirection(t *testing.T) {
	reinforced := qualityScore(5, 0, 5)
	contradicted := qualityScore(0, 5, 5)
	if reinforced <= contradicted {
		t.Fatalf("reinforcements must score above contradictions: %f vs %f", reinforced, contradicted)
	}
	if reinforced != 1 || contradicted != 0 {
		t.Fatalf("expected bounds 1 and 0, got %f and %f", reinforced, contradicted)
	}
	if qualityScore(0, 0, 0) != 0.5 {
		t.Fatalf("empty set should be neutral")
	}
}

func TestCrossValidatorValidated(t *testing.T) {
	list := []models.Pattern{
		coPattern("co-1", "binary_sensor.door", "light.hall", 0.95),
		slotPattern("tod-1", "light.hall", 19, 0, 0.3),
	}

	keep := NewCrossValidator(nil, ValidatorOptions{})
	if got := keep.Validated(list, keep.Validate(list)); len(got) != 2 {
		t.Fatalf("expected report-only mode to keep patterns, got %d", len(got))
	}

	drop := NewCrossValidator(nil, ValidatorOptions{DropContradicted: true})
	got := drop.Validated(list, drop.Validate(list))
	if len(got) != 1 || got[0].ID != "tod-1" {
		t.Fatalf("expected contradicted co-occurrence dropped, got %+v", got)
	}
}
