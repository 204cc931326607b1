package patterns

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-synergy/internal/models"
	"github.com/miradorstack/mirador-synergy/internal/noise"
	"github.com/miradorstack/mirador-synergy/internal/utils"
)

// Options tunes the miner. Zero values fall back to defaults.
type Options struct {
	Window                  time.Duration
	BucketMinutes           int
	TimeOfDayMinOccurrences int
	TimeOfDayMinConfidence  float64
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 30 * time.Second
	}
	if o.BucketMinutes <= 0 || o.BucketMinutes > 60 {
		o.BucketMinutes = 15
	}
	if o.TimeOfDayMinOccurrences <= 0 {
		o.TimeOfDayMinOccurrences = 5
	}
	if o.TimeOfDayMinConfidence <= 0 {
		o.TimeOfDayMinConfidence = 0.2
	}
	return o
}

// Thresholds gate co-occurrence patterns. Each floor is independent, so raising
// any of them can only remove patterns.
type Thresholds struct {
	MinOccurrences  int
	MinSupportRatio float64
	MinConfidence   float64
}

// Miner detects co-occurrence and time-of-day patterns from state-change events.
type Miner struct {
	store  Store
	filter *noise.Filter
	opts   Options
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, filter *noise.Filter, store Store, opts Options) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	if filter == nil {
		filter = noise.Default()
	}
	return &Miner{store: store, filter: filter, opts: opts.withDefaults(), logger: logger}
}

// Mine detects patterns and hands them to the configured store under runID.
func (m *Miner) Mine(ctx context.Context, runID string, events []models.StateChangeEvent, th Thresholds) ([]models.Pattern, error) {
	patterns, err := m.Detect(ctx, events, th)
	if err != nil {
		return nil, err
	}
	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StorePatterns(ctx, runID, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.String("run_id", runID), slog.Any("error", err))
		}
	}
	return patterns, nil
}

// Detect returns the co-occurrence and time-of-day patterns supported by events.
// A co-occurrence must reach th.MinOccurrences joint firings, a joint/total ratio of
// th.MinSupportRatio and th.MinConfidence. The result is sorted by identity.
func (m *Miner) Detect(ctx context.Context, events []models.StateChangeEvent, th Thresholds) ([]models.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	usable := m.usableEvents(events)
	if len(usable) == 0 {
		return nil, nil
	}

	patterns := m.coOccurrences(usable, th)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patterns = append(patterns, m.timeOfDay(usable)...)

	models.SortPatterns(patterns)
	return patterns, nil
}

func (m *Miner) usableEvents(events []models.StateChangeEvent) []models.StateChangeEvent {
	out := make([]models.StateChangeEvent, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp.IsZero() || !IsKnownState(ev.Value) {
			continue
		}
		if !m.filter.IsActionable(ev.EntityID) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// IsKnownState reports whether a recorded value reflects a real device state.
func IsKnownState(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "unknown", "unavailable", "none":
		return false
	}
	return true
}

type pairStat struct {
	joint    int
	delaySum float64
}

func (m *Miner) coOccurrences(events []models.StateChangeEvent, th Thresholds) []models.Pattern {
	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.EntityID]++
	}

	pairs := make(map[[2]string]*pairStat)
	for i, trigger := range events {
		seen := make(map[string]struct{})
		for j := i + 1; j < len(events); j++ {
			next := events[j]
			delay := next.Timestamp.Sub(trigger.Timestamp)
			if delay > m.opts.Window {
				break
			}
			if delay <= 0 || next.EntityID == trigger.EntityID {
				continue
			}
			if _, dup := seen[next.EntityID]; dup {
				continue
			}
			seen[next.EntityID] = struct{}{}
			if !m.filter.IsMeaningfulPair(trigger.EntityID, next.EntityID) {
				continue
			}
			key := [2]string{trigger.EntityID, next.EntityID}
			stat, ok := pairs[key]
			if !ok {
				stat = &pairStat{}
				pairs[key] = stat
			}
			stat.joint++
			stat.delaySum += delay.Seconds()
		}
	}

	total := float64(len(events))
	out := make([]models.Pattern, 0)
	for key, stat := range pairs {
		if stat.joint < th.MinOccurrences {
			continue
		}
		support := float64(stat.joint) / total
		if support < th.MinSupportRatio {
			continue
		}
		confidence := float64(stat.joint) / float64(counts[key[0]])
		if confidence < th.MinConfidence {
			continue
		}
		baseRate := float64(counts[key[1]]) / total
		lift := 0.0
		if baseRate > 0 {
			lift = confidence / baseRate
		}
		p := models.Pattern{
			Type:     models.PatternCoOccurrence,
			DeviceID: key[1],
			CoOccurrence: &models.CoOccurrence{
				Trigger:         key[0],
				Action:          key[1],
				Support:         support,
				Confidence:      confidence,
				Lift:            lift,
				WindowSeconds:   int(m.opts.Window.Seconds()),
				AvgDelaySeconds: stat.delaySum / float64(stat.joint),
			},
			Confidence:  clamp(confidence, 0, 1),
			Occurrences: stat.joint,
			Metadata: map[string]any{
				"trigger_count": counts[key[0]],
				"action_count":  counts[key[1]],
			},
		}
		p.ID = PatternID(p)
		out = append(out, p)
	}
	return out
}

func (m *Miner) timeOfDay(events []models.StateChangeEvent) []models.Pattern {
	type bucketStat struct {
		count     int
		minuteSum int
	}
	perDevice := make(map[string]map[int]*bucketStat)
	totals := make(map[string]int)
	for _, ev := range events {
		minute := utils.MinuteOfDay(ev.Timestamp)
		bucket := minute / m.opts.BucketMinutes
		buckets, ok := perDevice[ev.EntityID]
		if !ok {
			buckets = make(map[int]*bucketStat)
			perDevice[ev.EntityID] = buckets
		}
		stat, ok := buckets[bucket]
		if !ok {
			stat = &bucketStat{}
			buckets[bucket] = stat
		}
		stat.count++
		stat.minuteSum += minute
		totals[ev.EntityID]++
	}

	out := make([]models.Pattern, 0)
	for device, buckets := range perDevice {
		total := totals[device]
		for _, stat := range buckets {
			if stat.count < m.opts.TimeOfDayMinOccurrences {
				continue
			}
			confidence := float64(stat.count) / float64(total)
			if confidence < m.opts.TimeOfDayMinConfidence {
				continue
			}
			mean := int(math.Round(float64(stat.minuteSum) / float64(stat.count)))
			p := models.Pattern{
				Type:     models.PatternTimeOfDay,
				DeviceID: device,
				TimeOfDay: &models.TimeOfDay{
					Hour:             mean / 60,
					Minute:           mean % 60,
					Occurrences:      stat.count,
					TotalOccurrences: total,
				},
				Confidence:  confidence,
				Occurrences: stat.count,
				Metadata: map[string]any{
					"hour":           mean / 60,
					"minute":         mean % 60,
					"bucket_minutes": m.opts.BucketMinutes,
				},
			}
			p.ID = PatternID(p)
			out = append(out, p)
		}
	}
	return out
}

// PatternID derives a stable id from the pattern identity.
func PatternID(p models.Pattern) string {
	return "pat-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.IdentityKey())).String()
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
