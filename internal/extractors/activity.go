package extractors

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/patterns"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

const minAnomalyDays = 7

// ActivityExtractor detects days on which a device was unusually busy or quiet using
// a z-score over its daily activation counts.
type ActivityExtractor struct {
	threshold float64
}

// NewActivityExtractor creates an activity anomaly detector; threshold <= 0 means 2.5.
func NewActivityExtractor(threshold float64) *ActivityExtractor {
	if threshold <= 0 {
		threshold = 2.5
	}
	return &ActivityExtractor{threshold: threshold}
}

// Detect returns anomaly patterns for devices with at least a week of history.
func (e *ActivityExtractor) Detect(events []models.StateChangeEvent) []models.Pattern {
	if len(events) == 0 {
		return nil
	}

	daily := make(map[string]map[string]int)
	first, last := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events {
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
		days, ok := daily[ev.EntityID]
		if !ok {
			days = make(map[string]int)
			daily[ev.EntityID] = days
		}
		days[utils.DayKey(ev.Timestamp)]++
	}

	calendar := dayRange(first, last)
	if len(calendar) < minAnomalyDays {
		return nil
	}

	out := make([]models.Pattern, 0)
	for device, days := range daily {
		counts := make([]float64, len(calendar))
		for i, day := range calendar {
			counts[i] = float64(days[day])
		}
		avg := mean(counts)
		std := stdDev(counts, avg)
		if std == 0 {
			continue
		}
		for i, day := range calendar {
			score := (counts[i] - avg) / std
			if math.Abs(score) < e.threshold {
				continue
			}
			direction := "spike"
			if score < 0 {
				direction = "drop"
			}
			p := models.Pattern{
				Type:     models.PatternAnomaly,
				DeviceID: device,
				Anomaly: &models.ActivityAnomaly{
					Day:       day,
					Count:     int(counts[i]),
					Mean:      avg,
					ZScore:    score,
					Direction: direction,
				},
				Confidence:  math.Min(1, math.Abs(score)/(2*e.threshold)),
				Occurrences: int(counts[i]),
				Metadata:    map[string]any{"threshold": e.threshold},
			}
			p.ID = patterns.PatternID(p)
			out = append(out, p)
		}
	}
	models.SortPatterns(out)
	return out
}

func dayRange(first, last time.Time) []string {
	start := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, first.Location())
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, utils.DayKey(d))
	}
	return days
}

func mean(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func stdDev(values []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	variance := sum / float64(len(values))
	return math.Sqrt(variance)
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(math.Round(p * float64(len(sorted)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func meanAbsoluteDeviation(values []float64, center float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v - center)
	}
	return sum / float64(len(values))
}
