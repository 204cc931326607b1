package synergy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

// hourFallbackFactor discounts groups that only share a calendar hour.
const hourFallbackFactor = 0.7

type slot struct {
	device  string
	minute  int
	pattern models.Pattern
}

func (d *Detector) schedules(in input) []models.Synergy {
	slots := make([]slot, 0)
	for _, p := range in.patterns {
		if p.Type != models.PatternTimeOfDay || p.TimeOfDay == nil {
			continue
		}
		if !d.filter.IsControllable(p.DeviceID) {
			continue
		}
		slots = append(slots, slot{device: p.DeviceID, minute: p.TimeOfDay.MinuteOfDay(), pattern: p})
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].minute != slots[j].minute {
			return slots[i].minute < slots[j].minute
		}
		return slots[i].device < slots[j].device
	})

	used := make([]bool, len(slots))
	out := make([]models.Synergy, 0)
	for i := range slots {
		if used[i] {
			continue
		}
		group := []int{i}
		devices := map[string]struct{}{slots[i].device: {}}
		// walk forward around the clock so 23:50 and 00:10 share a window
		for k := 1; k < len(slots); k++ {
			j := (i + k) % len(slots)
			if utils.MinutesAfter(slots[i].minute, slots[j].minute) > d.opts.ScheduleWindowMinutes {
				break
			}
			if used[j] {
				continue
			}
			if _, dup := devices[slots[j].device]; dup {
				continue
			}
			devices[slots[j].device] = struct{}{}
			group = append(group, j)
		}
		if len(group) < 2 {
			continue
		}
		for _, idx := range group {
			used[idx] = true
		}
		out = append(out, d.scheduleSynergy(in, pick(slots, group), 1, "window"))
	}

	byHour := make(map[int][]int)
	hours := make([]int, 0)
	for i := range slots {
		if used[i] {
			continue
		}
		hour := slots[i].minute / 60
		if _, ok := byHour[hour]; !ok {
			hours = append(hours, hour)
		}
		byHour[hour] = append(byHour[hour], i)
	}
	sort.Ints(hours)
	for _, hour := range hours {
		group := make([]int, 0)
		devices := make(map[string]struct{})
		for _, idx := range byHour[hour] {
			if _, dup := devices[slots[idx].device]; dup {
				continue
			}
			devices[slots[idx].device] = struct{}{}
			group = append(group, idx)
		}
		if len(group) < 2 {
			continue
		}
		out = append(out, d.scheduleSynergy(in, pick(slots, group), hourFallbackFactor, "hour"))
	}
	return out
}

func pick(slots []slot, idx []int) []slot {
	out := make([]slot, len(idx))
	for i, v := range idx {
		out[i] = slots[v]
	}
	return out
}

func (d *Detector) scheduleSynergy(in input, group []slot, factor float64, grouping string) models.Synergy {
	devices := make([]string, len(group))
	supporting := make([]string, len(group))
	names := make([]string, len(group))
	total := 0.0
	for i, s := range group {
		devices[i] = s.device
		supporting[i] = s.pattern.ID
		names[i] = friendly(s.device)
		total += s.pattern.Confidence
	}
	support := clamp(factor*total/float64(len(group)), 0, 1)
	confidence := clamp(0.5+0.5*support, 0, 1)
	start, end := group[0].minute, group[len(group)-1].minute
	window := utils.FormatMinuteOfDay(start) + "-" + utils.FormatMinuteOfDay(end)
	action := devices[len(devices)-1]
	return models.Synergy{
		ID:            uuid.NewString(),
		Type:          models.SynergyScheduleBased,
		Devices:       devices,
		TriggerEntity: devices[0],
		ActionEntity:  action,
		Area:          sharedArea(in.index, devices...),
		ImpactScore:   impactScore(action, confidence),
		Confidence:    confidence,
		Complexity:    models.ComplexityLow,
		Rationale:     fmt.Sprintf("%s are usually switched around %s; schedule them together", strings.Join(names, ", "), window),
		Depth:         len(devices),
		Context: models.SynergyContext{
			TimeWindow:          window,
			SupportingPatterns:  supporting,
			PatternSupportScore: support,
			ValidatedByPatterns: true,
			Extra:               map[string]float64{"grouped_by_hour": boolFloat(grouping == "hour")},
		},
	}
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
