package patterns

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

type fakePatternStore struct {
	runID  string
	stored int
}

func (f *fakePatternStore) StorePatterns(ctx context.Context, runID string, patterns []models.Pattern) error {
	f.runID = runID
	f.stored += len(patterns)
	return nil
}

// kitchenEvents fires the motion sensor at 06:59:50 on 14 days and the light at
// 07:00 on the first 12 of them.
func kitchenEvents() []models.StateChangeEvent {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var events []models.StateChangeEvent
	for day := 0; day < 14; day++ {
		base := start.AddDate(0, 0, day)
		events = append(events, models.StateChangeEvent{
			EntityID:  "binary_sensor.motion_kitchen",
			Timestamp: base.Add(6*time.Hour + 59*time.Minute + 50*time.Second),
			Value:     "on",
		})
		if day < 12 {
			events = append(events, models.StateChangeEvent{
				EntityID:  "light.kitchen",
				Timestamp: base.Add(7 * time.Hour),
				Value:     "on",
			})
		}
	}
	return events
}

func findCoOccurrence(patterns []models.Pattern, trigger, action string) *models.Pattern {
	for i := range patterns {
		co := patterns[i].CoOccurrence
		if co != nil && co.Trigger == trigger && co.Action == action {
			return &patterns[i]
		}
	}
	return nil
}

func TestMinerDetectsKitchenCoOccurrence(t *testing.T) {
	miner := NewMiner(nil, nil, nil, Options{})

	patterns, err := miner.Detect(context.Background(), kitchenEvents(), Thresholds{MinOccurrences: 10, MinConfidence: 0.75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := findCoOccurrence(patterns, "binary_sensor.motion_kitchen", "light.kitchen")
	if p == nil {
		t.Fatalf("expected motion -> light pattern, got %+v", patterns)
	}
	if p.Occurrences != 12 {
		t.Fatalf("expected 12 occurrences, got %d", p.Occurrences)
	}
	if diff := p.Confidence - 12.0/14.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected confidence 0.857, got %f", p.Confidence)
	}
	if p.CoOccurrence.AvgDelaySeconds != 10 {
		t.Fatalf("expected 10s delay, got %f", p.CoOccurrence.AvgDelaySeconds)
	}
	if p.CoOccurrence.Lift <= 1 {
		t.Fatalf("expected lift above 1, got %f", p.CoOccurrence.Lift)
	}
	if findCoOccurrence(patterns, "light.kitchen", "binary_sensor.motion_kitchen") != nil {
		t.Fatalf("action preceding trigger must not form a pattern")
	}
}

func TestMinerDetectsTimeOfDay(t *testing.T) {
	miner := NewMiner(nil, nil, nil, Options{})
	patterns, err := miner.Detect(context.Background(), kitchenEvents(), Thresholds{MinOccurrences: 10, MinConfidence: 0.75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var light *models.Pattern
	for i := range patterns {
		if patterns[i].Type == models.PatternTimeOfDay && patterns[i].DeviceID == "light.kitchen" {
			light = &patterns[i]
		}
	}
	if light == nil {
		t.Fatalf("expected time of day pattern for the light")
	}
	if light.TimeOfDay.Hour != 7 || light.TimeOfDay.Minute != 0 || light.Occurrences != 12 || light.Confidence != 1 {
		t.Fatalf("unexpected slot %+v conf=%f", light.TimeOfDay, light.Confidence)
	}
}

func TestMinerIsOrderIndependent(t *testing.T) {
	miner := NewMiner(nil, nil, nil, Options{})
	events := kitchenEvents()
	first, err := miner.Detect(context.Background(), events, Thresholds{MinOccurrences: 10, MinConfidence: 0.75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shuffled := append([]models.StateChangeEvent(nil), events...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second, err := miner.Detect(context.Background(), shuffled, Thresholds{MinOccurrences: 10, MinConfidence: 0.75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical output for shuffled input")
	}
}

func TestMinerThresholdMonotonicity(t *testing.T) {
	miner := NewMiner(nil, nil, nil, Options{})
	events := kitchenEvents()
	count := func(th Thresholds) int {
		t.Helper()
		patterns, err := miner.Detect(context.Background(), events, th)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return len(patterns)
	}

	prev := -1
	for _, occurrences := range []int{0, 1, 5, 10, 12, 13, 20} {
		got := count(Thresholds{MinOccurrences: occurrences, MinConfidence: 0.75})
		if prev >= 0 && got > prev {
			t.Fatalf("raising min occurrences to %d increased patterns %d -> %d", occurrences, prev, got)
		}
		prev = got
	}

	// 12 joint firings over 26 events puts the kitchen ratio at ~0.46.
	prev = -1
	for _, ratio := range []float64{0, 0.1, 0.4, 0.46, 0.5, 0.9, 1, 2} {
		got := count(Thresholds{MinOccurrences: 1, MinSupportRatio: ratio, MinConfidence: 0.75})
		if prev >= 0 && got > prev {
			t.Fatalf("raising min support ratio to %v increased patterns %d -> %d", ratio, prev, got)
		}
		prev = got
	}
	if withPair, without := count(Thresholds{MinSupportRatio: 0.4, MinConfidence: 0.75}), count(Thresholds{MinSupportRatio: 0.5, MinConfidence: 0.75}); withPair != without+1 {
		t.Fatalf("expected the ratio floor to drop exactly the kitchen pair, got %d -> %d", withPair, without)
	}

	prev = -1
	for _, confidence := range []float64{0.1, 0.5, 0.85, 0.9, 1} {
		got := count(Thresholds{MinOccurrences: 1, MinConfidence: confidence})
		if prev >= 0 && got > prev {
			t.Fatalf("raising min_confidence to %v increased patterns %d -> %d", confidence, prev, got)
		}
		prev = got
	}
}

func TestMinerSkipsNoise(t *testing.T) {
	miner := NewMiner(nil, nil, nil, Options{})
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var events []models.StateChangeEvent
	for i := 0; i < 20; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		events = append(events,
			models.StateChangeEvent{EntityID: "sensor.zigbee_signal_strength", Timestamp: ts, Value: "-70"},
			models.StateChangeEvent{EntityID: "light.hall", Timestamp: ts.Add(5 * time.Second), Value: "unavailable"},
		)
	}
	patterns, err := miner.Detect(context.Background(), events, Thresholds{MinOccurrences: 1, MinConfidence: 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 0 {
		t.Fatalf("expected noise to be ignored, got %+v", patterns)
	}
}

func TestMinerStoresPatterns(t *testing.T) {
	store := &fakePatternStore{}
	miner := NewMiner(nil, nil, store, Options{})

	patterns, err := miner.Mine(context.Background(), "run-1", kitchenEvents(), Thresholds{MinOccurrences: 10, MinConfidence: 0.75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.stored != len(patterns) || store.runID != "run-1" {
		t.Fatalf("expected %d patterns stored under run-1, got %d (%s)", len(patterns), store.stored, store.runID)
	}
}

func TestMinerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMiner(nil, nil, nil, Options{}).Detect(ctx, kitchenEvents(), Thresholds{MinOccurrences: 10, MinConfidence: 0.75}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestPatternIDIsStable(t *testing.T) {
	p := models.Pattern{Type: models.PatternTimeOfDay, DeviceID: "light.x", TimeOfDay: &models.TimeOfDay{Hour: 7}}
	if PatternID(p) != PatternID(p.Clone()) {
		t.Fatalf("expected stable id")
	}
}
