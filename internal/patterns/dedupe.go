package patterns

import (
	"sort"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

// DefaultMergeWindowMinutes is how close two time-of-day slots of one device must be
// to describe the same behaviour.
const DefaultMergeWindowMinutes = 15

// Deduplicator consolidates exact and near duplicate patterns.
type Deduplicator struct {
	windowMinutes int
}

// NewDeduplicator returns a Deduplicator merging time-of-day slots within windowMinutes.
func NewDeduplicator(windowMinutes int) *Deduplicator {
	if windowMinutes <= 0 {
		windowMinutes = DefaultMergeWindowMinutes
	}
	return &Deduplicator{windowMinutes: windowMinutes}
}

// Deduplicate applies the default merge window.
func Deduplicate(patterns []models.Pattern) []models.Pattern {
	return NewDeduplicator(DefaultMergeWindowMinutes).Deduplicate(patterns)
}

// Deduplicate collapses exact duplicates, keeps the strongest co-occurrence per
// ordered pair and merges nearby time-of-day slots of the same device. The input is
// not modified and the output does not depend on input order.
func (d *Deduplicator) Deduplicate(patterns []models.Pattern) []models.Pattern {
	if len(patterns) == 0 {
		return nil
	}

	unique := make([]models.Pattern, 0, len(patterns))
	seen := make(map[string]struct{}, len(patterns))
	for _, p := range sortedClones(patterns) {
		key := p.ExactKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, p)
	}

	strongest := make(map[string]models.Pattern)
	slots := make(map[string][]models.Pattern)
	out := make([]models.Pattern, 0, len(unique))
	for _, p := range unique {
		switch {
		case p.CoOccurrence != nil:
			key := p.IdentityKey()
			if cur, ok := strongest[key]; !ok || stronger(p, cur) {
				strongest[key] = p
			}
		case p.Type == models.PatternTimeOfDay && p.TimeOfDay != nil:
			slots[p.DeviceID] = append(slots[p.DeviceID], p)
		default:
			out = append(out, p)
		}
	}
	for _, p := range strongest {
		out = append(out, p)
	}
	for _, group := range slots {
		out = append(out, d.mergeSlots(group)...)
	}

	models.SortPatterns(out)
	return out
}

func sortedClones(patterns []models.Pattern) []models.Pattern {
	out := make([]models.Pattern, len(patterns))
	for i, p := range patterns {
		out[i] = p.Clone()
	}
	models.SortPatterns(out)
	return out
}

func stronger(a, b models.Pattern) bool {
	if a.Occurrences != b.Occurrences {
		return a.Occurrences > b.Occurrences
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.ExactKey() < b.ExactKey()
}

// mergeSlots clusters slots of one device by single linkage on the circular
// minute-of-day axis.
func (d *Deduplicator) mergeSlots(group []models.Pattern) []models.Pattern {
	sort.SliceStable(group, func(i, j int) bool {
		mi, mj := group[i].TimeOfDay.MinuteOfDay(), group[j].TimeOfDay.MinuteOfDay()
		if mi != mj {
			return mi < mj
		}
		return group[i].ExactKey() < group[j].ExactKey()
	})

	parent := make([]int, len(group))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range group {
		for j := i + 1; j < len(group); j++ {
			if utils.CircularMinuteDistance(group[i].TimeOfDay.MinuteOfDay(), group[j].TimeOfDay.MinuteOfDay()) <= d.windowMinutes {
				parent[find(j)] = find(i)
			}
		}
	}

	clusters := make(map[int][]models.Pattern)
	roots := make([]int, 0)
	for i := range group {
		root := find(i)
		if _, ok := clusters[root]; !ok {
			roots = append(roots, root)
		}
		clusters[root] = append(clusters[root], group[i])
	}

	out := make([]models.Pattern, 0, len(roots))
	for _, root := range roots {
		members := clusters[root]
		if len(members) == 1 {
			out = append(out, members[0])
			continue
		}
		out = append(out, mergeCluster(members))
	}
	return out
}

func mergeCluster(members []models.Pattern) models.Pattern {
	// members are ordered by minute, so the first best is the earliest
	best := members[0]
	occurrences, total, merged := 0, 0, 0
	confidence := 0.0
	for _, m := range members {
		if m.Occurrences > best.Occurrences {
			best = m
		}
		occurrences += m.Occurrences
		confidence += m.Confidence
		if m.TimeOfDay.TotalOccurrences > total {
			total = m.TimeOfDay.TotalOccurrences
		}
		merged += MergedCount(m)
	}

	out := best.Clone()
	out.Occurrences = occurrences
	out.Confidence = clamp(confidence, 0, 1)
	out.TimeOfDay.Occurrences = occurrences
	if total < occurrences {
		total = occurrences
	}
	out.TimeOfDay.TotalOccurrences = total
	if out.Metadata == nil {
		out.Metadata = make(map[string]any)
	}
	out.Metadata["hour"] = out.TimeOfDay.Hour
	out.Metadata["minute"] = out.TimeOfDay.Minute
	out.Metadata["merged_count"] = merged
	out.ID = PatternID(out)
	return out
}

// MergedCount returns how many mined patterns a pattern stands for.
func MergedCount(p models.Pattern) int {
	if p.Metadata == nil {
		return 1
	}
	switch v := p.Metadata["merged_count"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return 1
}
