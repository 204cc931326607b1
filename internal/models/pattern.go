package models

import (
	"fmt"
	"sort"
)

// PatternType enumerates mined pattern kinds.
type PatternType string

const (
	PatternCoOccurrence PatternType = "co_occurrence"
	PatternTimeOfDay    PatternType = "time_of_day"
	PatternSequence     PatternType = "sequence"
	PatternAnomaly      PatternType = "anomaly"
)

// Pattern is a statistically supported recurring relationship between state changes.
type Pattern struct {
	ID           string           `json:"id"`
	Type         PatternType      `json:"pattern_type"`
	DeviceID     string           `json:"device_id"`
	CoOccurrence *CoOccurrence    `json:"co_occurrence,omitempty"`
	TimeOfDay    *TimeOfDay       `json:"time_of_day,omitempty"`
	Anomaly      *ActivityAnomaly `json:"anomaly,omitempty"`
	Confidence   float64          `json:"confidence"`
	Occurrences  int              `json:"occurrences"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

// CoOccurrence describes a trigger -> action relationship.
type CoOccurrence struct {
	Trigger         string  `json:"trigger"`
	Action          string  `json:"action"`
	Support         float64 `json:"support"`
	Confidence      float64 `json:"confidence"`
	Lift            float64 `json:"lift"`
	WindowSeconds   int     `json:"window_seconds"`
	AvgDelaySeconds float64 `json:"avg_delay_seconds"`
}

// TimeOfDay describes a recurring activation time of one device.
type TimeOfDay struct {
	Hour             int `json:"hour"`
	Minute           int `json:"minute"`
	Occurrences      int `json:"occurrences"`
	TotalOccurrences int `json:"total_occurrences"`
}

// MinuteOfDay returns the slot as minutes after midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// ActivityAnomaly flags a day whose activation count deviates from the device norm.
type ActivityAnomaly struct {
	Day       string  `json:"day"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	ZScore    float64 `json:"z_score"`
	Direction string  `json:"direction"`
}

// Devices returns the entity ids the pattern refers to, trigger first.
func (p Pattern) Devices() []string {
	if p.CoOccurrence != nil {
		return []string{p.CoOccurrence.Trigger, p.CoOccurrence.Action}
	}
	if p.DeviceID == "" {
		return nil
	}
	return []string{p.DeviceID}
}

// IdentityKey identifies the device/slot a pattern describes, ignoring its statistics.
func (p Pattern) IdentityKey() string {
	switch {
	case p.CoOccurrence != nil:
		return fmt.Sprintf("%s:%s->%s", p.Type, p.CoOccurrence.Trigger, p.CoOccurrence.Action)
	case p.TimeOfDay != nil:
		return fmt.Sprintf("%s:%s@%02d:%02d", p.Type, p.DeviceID, p.TimeOfDay.Hour, p.TimeOfDay.Minute)
	case p.Anomaly != nil:
		return fmt.Sprintf("%s:%s#%s", p.Type, p.DeviceID, p.Anomaly.Day)
	default:
		return fmt.Sprintf("%s:%s", p.Type, p.DeviceID)
	}
}

// ExactKey extends IdentityKey with the statistics used for exact-duplicate detection.
func (p Pattern) ExactKey() string {
	return fmt.Sprintf("%s|%.6f|%d", p.IdentityKey(), p.Confidence, p.Occurrences)
}

// Clone returns a deep copy so callers can adjust a pattern without aliasing.
func (p Pattern) Clone() Pattern {
	out := p
	if p.CoOccurrence != nil {
		co := *p.CoOccurrence
		out.CoOccurrence = &co
	}
	if p.TimeOfDay != nil {
		tod := *p.TimeOfDay
		out.TimeOfDay = &tod
	}
	if p.Anomaly != nil {
		an := *p.Anomaly
		out.Anomaly = &an
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// SortPatterns orders patterns by type then identity so output sets compare stably.
func SortPatterns(patterns []Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Type != patterns[j].Type {
			return patterns[i].Type < patterns[j].Type
		}
		ki, kj := patterns[i].IdentityKey(), patterns[j].IdentityKey()
		if ki != kj {
			return ki < kj
		}
		return patterns[i].ExactKey() < patterns[j].ExactKey()
	})
}
