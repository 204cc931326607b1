package extractors

import (
	"testing"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

func TestActivityExtractorDetect(t *testing.T) {
	extractor := NewActivityExtractor(2.0)

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var events []models.StateChangeEvent
	for day := 0; day < 14; day++ {
		count := 3
		if day == 10 {
			count = 30
		}
		for i := 0; i < count; i++ {
			events = append(events, models.StateChangeEvent{
				EntityID:  "light.office",
				Timestamp: start.AddDate(0, 0, day).Add(time.Duration(i) * time.Minute),
				Value:     "on",
			})
		}
	}

	anomalies := extractor.Detect(events)
	if len(anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %d", len(anomalies))
	}
	got := anomalies[0]
	if got.Anomaly.Day != "2026-03-11" || got.Anomaly.Direction != "spike" || got.Occurrences != 30 {
		t.Fatalf("unexpected anomaly %+v", got.Anomaly)
	}
	if got.Confidence <= 0 || got.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", got.Confidence)
	}
}

func TestActivityExtractorNeedsAWeek(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	events := []models.StateChangeEvent{
		{EntityID: "light.office", Timestamp: start, Value: "on"},
		{EntityID: "light.office", Timestamp: start.AddDate(0, 0, 2), Value: "on"},
	}
	if got := NewActivityExtractor(0).Detect(events); len(got) != 0 {
		t.Fatalf("expected no anomalies for short history")
	}
}

func TestEventNormalizer(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	known := models.NewEntityIndex([]models.Entity{{EntityID: "light.hall"}, {EntityID: "switch.fan"}})
	events := []models.StateChangeEvent{
		{EntityID: "light.hall", Timestamp: base.Add(2 * time.Minute), Value: "on"},
		{EntityID: "light.hall", Timestamp: base, Value: "off"},
		{EntityID: "light.hall", Timestamp: base.Add(3 * time.Minute), Value: "on"},
		{EntityID: "switch.fan", Timestamp: base.Add(time.Minute), Value: "unavailable"},
		{EntityID: "light.ghost", Timestamp: base, Value: "on"},
		{EntityID: "broken", Timestamp: base, Value: "on"},
	}

	out, stats := NewEventNormalizer().Normalize(events, known)
	if len(out) != 2 {
		t.Fatalf("expected 2 events, got %+v", out)
	}
	if !out[0].Timestamp.Equal(base) || out[1].Value != "on" {
		t.Fatalf("unexpected ordering %+v", out)
	}
	if stats.Malformed != 2 || stats.Unknown != 1 || stats.Repeated != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFlappingIgnoresOrdinaryDevices(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var events []models.StateChangeEvent
	for i := 0; i < 48; i++ {
		events = append(events, models.StateChangeEvent{EntityID: "light.a", Timestamp: base.Add(time.Duration(i) * 30 * time.Minute), Value: "on"})
		events = append(events, models.StateChangeEvent{EntityID: "light.b", Timestamp: base.Add(time.Duration(i) * 30 * time.Minute), Value: "on"})
		events = append(events, models.StateChangeEvent{EntityID: "light.c", Timestamp: base.Add(time.Duration(i) * 30 * time.Minute), Value: "on"})
	}
	for i := 0; i < 1440; i++ {
		events = append(events, models.StateChangeEvent{EntityID: "switch.relay", Timestamp: base.Add(time.Duration(i) * time.Minute), Value: "on"})
	}
	flapping := Flapping(events)
	if _, ok := flapping["switch.relay"]; !ok || len(flapping) != 1 {
		t.Fatalf("expected only the relay to flap, got %v", flapping)
	}
}
