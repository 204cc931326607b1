package extractors

import (
	"math"
	"sort"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/patterns"
)

// chattyFloorPerDay is the change rate (one every five minutes) below which an
// entity is never treated as flapping.
const chattyFloorPerDay = 288

// EventNormalizer cleans raw recorder output before mining.
type EventNormalizer struct{}

// NewEventNormalizer constructs an EventNormalizer.
func NewEventNormalizer() *EventNormalizer {
	return &EventNormalizer{}
}

// NormalizeStats reports what Normalize dropped.
type NormalizeStats struct {
	Malformed int
	Unknown   int
	Repeated  int
	Flapping  []string
}

// Normalize drops malformed and unknown-state records, records of entities missing
// from known (when known is non-empty), attribute-only repeats of the previous value
// and entities that flap far above the rest of the home. The result is time ordered.
func (n *EventNormalizer) Normalize(events []models.StateChangeEvent, known models.EntityIndex) ([]models.StateChangeEvent, NormalizeStats) {
	var stats NormalizeStats
	kept := make([]models.StateChangeEvent, 0, len(events))
	for _, ev := range events {
		if _, _, ok := models.SplitEntityID(ev.EntityID); !ok || ev.Timestamp.IsZero() {
			stats.Malformed++
			continue
		}
		if len(known) > 0 {
			if _, ok := known[ev.EntityID]; !ok {
				stats.Malformed++
				continue
			}
		}
		if !patterns.IsKnownState(ev.Value) {
			stats.Unknown++
			continue
		}
		kept = append(kept, ev)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].EntityID != kept[j].EntityID {
			return kept[i].EntityID < kept[j].EntityID
		}
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})
	deduped := kept[:0]
	for i, ev := range kept {
		if i > 0 && kept[i-1].EntityID == ev.EntityID && kept[i-1].Value == ev.Value {
			stats.Repeated++
			continue
		}
		deduped = append(deduped, ev)
	}

	flapping := Flapping(deduped)
	out := make([]models.StateChangeEvent, 0, len(deduped))
	for _, ev := range deduped {
		if _, skip := flapping[ev.EntityID]; skip {
			continue
		}
		out = append(out, ev)
	}
	for id := range flapping {
		stats.Flapping = append(stats.Flapping, id)
	}
	sort.Strings(stats.Flapping)

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, stats
}

// Flapping spots entities whose change rate is a robust outlier (median absolute
// deviation) and above chattyFloorPerDay.
func Flapping(events []models.StateChangeEvent) map[string]struct{} {
	if len(events) == 0 {
		return nil
	}
	first, last := events[0].Timestamp, events[0].Timestamp
	perEntity := make(map[string]int)
	for _, ev := range events {
		perEntity[ev.EntityID]++
		if ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}
	}
	days := math.Max(1, last.Sub(first).Hours()/24)

	rates := make([]float64, 0, len(perEntity))
	for _, count := range perEntity {
		rates = append(rates, float64(count)/days)
	}
	median := percentile(rates, 0.5)
	mad := meanAbsoluteDeviation(rates, median)
	if mad == 0 {
		mad = 1
	}

	out := make(map[string]struct{})
	for id, count := range perEntity {
		rate := float64(count) / days
		if rate < chattyFloorPerDay {
			continue
		}
		if math.Abs(rate-median)/mad >= 3 {
			out[id] = struct{}{}
		}
	}
	return out
}
