package synergy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

func (d *Detector) devicePairs(in input) []models.Synergy {
	out := make([]models.Synergy, 0)
	for _, p := range d.pairEdges(in) {
		co := p.CoOccurrence
		if !d.filter.IsControllable(co.Action) {
			continue
		}
		area := sharedArea(in.index, co.Trigger, co.Action)
		if area == "" {
			area = in.index.Area(co.Action)
		}
		out = append(out, models.Synergy{
			ID:            uuid.NewString(),
			Type:          models.SynergyDevicePair,
			Devices:       []string{co.Trigger, co.Action},
			TriggerEntity: co.Trigger,
			ActionEntity:  co.Action,
			Area:          area,
			ImpactScore:   impactScore(co.Action, p.Confidence),
			Confidence:    p.Confidence,
			Complexity:    models.ComplexityLow,
			Rationale: fmt.Sprintf("%s follows %s within %.0fs in %d of %d cases",
				friendly(co.Action), friendly(co.Trigger), co.AvgDelaySeconds, p.Occurrences, triggerCount(p)),
			Depth: 2,
			Context: models.SynergyContext{
				SupportingPatterns:  []string{p.ID},
				PatternSupportScore: p.Confidence,
				ValidatedByPatterns: true,
				Extra: map[string]float64{
					"lift":    co.Lift,
					"support": co.Support,
				},
			},
		})
	}
	return out
}

// pairEdges returns co-occurrence patterns between meaningful pairs that clear the
// pair confidence floor.
func (d *Detector) pairEdges(in input) []models.Pattern {
	out := make([]models.Pattern, 0)
	for _, p := range in.patterns {
		if p.Type != models.PatternCoOccurrence || p.CoOccurrence == nil {
			continue
		}
		if p.Confidence < d.opts.PairConfidenceFloor {
			continue
		}
		if !d.filter.IsMeaningfulPair(p.CoOccurrence.Trigger, p.CoOccurrence.Action) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func triggerCount(p models.Pattern) int {
	if p.Metadata != nil {
		switch v := p.Metadata["trigger_count"].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	if p.Confidence > 0 {
		return int(float64(p.Occurrences)/p.Confidence + 0.5)
	}
	return p.Occurrences
}
