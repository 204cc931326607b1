package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/patterns"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

// ValidatorOptions tunes cross-validation.
type ValidatorOptions struct {
	HighConfidence   float64
	ContradictionGap float64
	ReinforceMinutes int
	DropContradicted bool
}

// CrossValidator inspects a pattern set for contradicting and reinforcing evidence.
type CrossValidator struct {
	opts   ValidatorOptions
	logger *slog.Logger
}

// NewCrossValidator constructs a CrossValidator.
func NewCrossValidator(logger *slog.Logger, opts ValidatorOptions) *CrossValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HighConfidence <= 0 {
		opts.HighConfidence = 0.9
	}
	if opts.ContradictionGap <= 0 {
		opts.ContradictionGap = 0.5
	}
	if opts.ReinforceMinutes <= 0 {
		opts.ReinforceMinutes = patterns.DefaultMergeWindowMinutes
	}
	return &CrossValidator{opts: opts, logger: logger}
}

// Validate reports contradictions, reinforcements and a quality score in [0,1] that
// rises with reinforcements and falls with contradictions.
func (v *CrossValidator) Validate(list []models.Pattern) models.ValidationResult {
	result := models.ValidationResult{
		Contradictions: []models.Contradiction{},
		Reinforcements: []models.Reinforcement{},
	}

	slots := make(map[string][]models.Pattern)
	for _, p := range list {
		if p.Type == models.PatternTimeOfDay && p.TimeOfDay != nil {
			slots[p.DeviceID] = append(slots[p.DeviceID], p)
		}
	}

	for _, p := range list {
		if p.Type != models.PatternCoOccurrence || p.CoOccurrence == nil || p.Confidence < v.opts.HighConfidence {
			continue
		}
		for _, device := range []string{p.CoOccurrence.Trigger, p.CoOccurrence.Action} {
			best, ok := strongestSlot(slots[device])
			if !ok {
				continue
			}
			gap := p.Confidence - best.Confidence
			if gap <= v.opts.ContradictionGap {
				continue
			}
			result.Contradictions = append(result.Contradictions, models.Contradiction{
				PatternID:     p.ID,
				ConflictingID: best.ID,
				DeviceID:      device,
				Gap:           gap,
				Reason: fmt.Sprintf("co-occurrence confidence %.2f but best daily slot of %s only %.2f",
					p.Confidence, device, best.Confidence),
			})
		}
	}

	devices := make([]string, 0, len(slots))
	for device := range slots {
		devices = append(devices, device)
	}
	sort.Strings(devices)
	for _, device := range devices {
		group := slots[device]
		for i := range group {
			if merged := patterns.MergedCount(group[i]); merged > 1 {
				result.Reinforcements = append(result.Reinforcements, models.Reinforcement{
					PatternID: group[i].ID,
					DeviceID:  device,
					Count:     merged - 1,
					Reason:    fmt.Sprintf("%d nearby slots merged", merged),
				})
			}
			for j := i + 1; j < len(group); j++ {
				d := utils.CircularMinuteDistance(group[i].TimeOfDay.MinuteOfDay(), group[j].TimeOfDay.MinuteOfDay())
				if d > v.opts.ReinforceMinutes {
					continue
				}
				result.Reinforcements = append(result.Reinforcements, models.Reinforcement{
					PatternID: group[i].ID,
					OtherID:   group[j].ID,
					DeviceID:  device,
					Count:     1,
					Reason:    fmt.Sprintf("daily slots %d minutes apart", d),
				})
			}
		}
	}

	result.QualityScore = qualityScore(result.ReinforcementCount(), len(result.Contradictions), len(list))
	if len(result.Contradictions) > 0 {
		v.logger.Debug("contradicting patterns found", slog.Int("count", len(result.Contradictions)))
	}
	return result
}

// Validated returns the patterns to feed the synergy detector; contradicted
// co-occurrence patterns are dropped when configured.
func (v *CrossValidator) Validated(list []models.Pattern, result models.ValidationResult) []models.Pattern {
	if !v.opts.DropContradicted || len(result.Contradictions) == 0 {
		return list
	}
	contradicted := make(map[string]struct{}, len(result.Contradictions))
	for _, c := range result.Contradictions {
		contradicted[c.PatternID] = struct{}{}
	}
	out := make([]models.Pattern, 0, len(list))
	for _, p := range list {
		if _, drop := contradicted[p.ID]; drop {
			continue
		}
		out = append(out, p)
	}
	return out
}

func strongestSlot(group []models.Pattern) (models.Pattern, bool) {
	if len(group) == 0 {
		return models.Pattern{}, false
	}
	best := group[0]
	for _, p := range group[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	return best, true
}

func qualityScore(reinforcements, contradictions, total int) float64 {
	n := total
	if n < 1 {
		n = 1
	}
	return clamp(0.5+0.5*float64(reinforcements-contradictions)/float64(n), 0, 1)
}
