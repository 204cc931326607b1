package blueprints

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

func motionLightBlueprint() models.BlueprintTemplate {
	return models.BlueprintTemplate{
		ID:          "motion_light",
		Name:        "Motion-activated light",
		UseCase:     "lighting",
		DeviceTypes: []string{"binary_sensor:motion", "light"},
		Quality:     0.9,
	}
}

func kitchenPair() (models.Synergy, models.EntityIndex) {
	index := models.NewEntityIndex([]models.Entity{
		{EntityID: "binary_sensor.motion_kitchen", DeviceClass: "motion"},
		{EntityID: "light.kitchen"},
	})
	return models.Synergy{
		Type:          models.SynergyDevicePair,
		Devices:       []string{"binary_sensor.motion_kitchen", "light.kitchen"},
		TriggerEntity: "binary_sensor.motion_kitchen",
		ActionEntity:  "light.kitchen",
	}, index
}

func TestScorePerfectFit(t *testing.T) {
	syn, index := kitchenPair()
	match := Score(motionLightBlueprint(), CandidateFromSynergy(syn, index))
	if match.FitScore < 1-1e-9 || !match.DeviceMatch || !match.UseCaseMatch {
		t.Fatalf("expected perfect fit, got %+v", match)
	}
}

func TestScorePartialOverlap(t *testing.T) {
	tmpl := models.BlueprintTemplate{
		ID:           "door_light",
		UseCase:      "security",
		DeviceTypes:  []string{"binary_sensor:door", "light"},
		Integrations: []string{"zwave"},
	}
	syn, index := kitchenPair()
	match := Score(tmpl, CandidateFromSynergy(syn, index))
	// light matches, motion vs door does not: overlap 1/3
	want := 0.6 * (1.0 / 3.0)
	if diff := match.FitScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected fit %.4f, got %.4f", want, match.FitScore)
	}
	if match.DeviceMatch || match.UseCaseMatch {
		t.Fatalf("unexpected flags %+v", match)
	}
}

func TestFindMatchThreshold(t *testing.T) {
	syn, index := kitchenPair()
	corpus := NewFileCorpus([]models.BlueprintTemplate{
		motionLightBlueprint(),
		{ID: "door_light", UseCase: "security", DeviceTypes: []string{"binary_sensor:door", "light"}, Quality: 0.9},
	})

	matcher := NewMatcher(nil, corpus, Options{MinScore: 0.7})
	match, ok := matcher.FindMatch(context.Background(), CandidateFromSynergy(syn, index))
	if !ok || match.BlueprintID != "motion_light" {
		t.Fatalf("expected motion_light match, got %+v ok=%v", match, ok)
	}

	strict := NewMatcher(nil, NewFileCorpus([]models.BlueprintTemplate{
		{ID: "door_light", UseCase: "security", DeviceTypes: []string{"binary_sensor:door", "light"}, Quality: 0.9},
	}), Options{MinScore: 0.5})
	if _, ok := strict.FindMatch(context.Background(), CandidateFromSynergy(syn, index)); ok {
		t.Fatalf("expected no match below threshold")
	}
}

func TestFindMatchFailsOpen(t *testing.T) {
	broken := CorpusFunc(func(context.Context, []string, string, float64) ([]models.BlueprintTemplate, error) {
		return nil, errors.New("connection refused")
	})
	matcher := NewMatcher(nil, broken, Options{})
	syn, index := kitchenPair()
	if _, ok := matcher.FindMatch(context.Background(), CandidateFromSynergy(syn, index)); ok {
		t.Fatalf("expected no match when corpus is down")
	}

	var nilMatcher *Matcher
	if _, ok := nilMatcher.FindMatch(context.Background(), CandidateFromSynergy(syn, index)); ok {
		t.Fatalf("expected nil matcher to never match")
	}
}

func TestFindMatchRespectsQuality(t *testing.T) {
	low := motionLightBlueprint()
	low.Quality = 0.2
	matcher := NewMatcher(nil, NewFileCorpus([]models.BlueprintTemplate{low}), Options{MinQuality: 0.5})
	syn, index := kitchenPair()
	if _, ok := matcher.FindMatch(context.Background(), CandidateFromSynergy(syn, index)); ok {
		t.Fatalf("expected low quality blueprint to be ignored")
	}
}

func TestInferDeviceTypes(t *testing.T) {
	got := InferDeviceTypes("Turn on the hallway lights when motion is detected after sunset")
	want := []string{"binary_sensor:motion", "light", "sun"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(InferDeviceTypes("nothing relevant here")) != 0 {
		t.Fatalf("expected no types")
	}
}

func TestLoadFileCorpusInfersTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blueprints.yaml")
	if err := os.WriteFile(path, []byte(`
blueprints:
  - id: sunset_blinds
    name: Close blinds at sunset
    use_case: comfort
    quality: 0.8
`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	corpus, err := LoadFileCorpus(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	results, err := corpus.Search(context.Background(), []string{"cover"}, "", 0.5)
	if err != nil || len(results) != 1 {
		t.Fatalf("expected one result, got %v (%v)", results, err)
	}
	if !reflect.DeepEqual(results[0].DeviceTypes, []string{"cover", "sun"}) {
		t.Fatalf("unexpected inferred types %v", results[0].DeviceTypes)
	}

	missing, err := LoadFileCorpus(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || missing.Len() != 0 {
		t.Fatalf("expected empty corpus for missing file")
	}
}

func TestCandidateFromPattern(t *testing.T) {
	index := models.NewEntityIndex([]models.Entity{{EntityID: "climate.bedroom"}})
	c := CandidateFromPattern(models.Pattern{Type: models.PatternTimeOfDay, DeviceID: "climate.bedroom"}, index)
	if c.UseCase != "climate" || !reflect.DeepEqual(c.DeviceTypes, []string{"climate"}) {
		t.Fatalf("unexpected candidate %+v", c)
	}
}
