package calibration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

func sample(p float64, accepted bool) models.CalibrationSample {
	return models.CalibrationSample{PredictedConfidence: p, Outcome: accepted, RecordedAt: time.Now()}
}

type failingOnline struct{}

func (failingOnline) Calibrate(float64) (float64, error)     { return 0, errors.New("boom") }
func (failingOnline) Observe(models.CalibrationSample) error { return errors.New("boom") }

type memoryPersister struct {
	mu      sync.Mutex
	samples []models.CalibrationSample
	fail    bool
}

func (m *memoryPersister) SaveSample(_ context.Context, s models.CalibrationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.samples = append(m.samples, s)
	return nil
}

func (m *memoryPersister) LoadSamples(_ context.Context, limit int) ([]models.CalibrationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CalibrationSample(nil), m.samples...), nil
}

func TestDisabledPipelineIsPassThrough(t *testing.T) {
	p := NewPipeline(nil, nil, nil, Options{})
	for _, base := range []float64{0, 0.25, 0.5, 0.857, 1} {
		out := p.Calibrate(Input{
			Base:            base,
			Components:      map[string]float64{ModelConfidence: 0.1},
			Blueprint:       &models.BlueprintMatch{FitScore: 1, Quality: 1},
			WantUncertainty: true,
		})
		assert.Equal(t, base, out.Confidence)
		assert.Nil(t, out.Estimate)
	}

	// feedback must not change a disabled pipeline either
	for i := 0; i < 20; i++ {
		p.RecordFeedback(context.Background(), sample(0.6, false), map[string]float64{ModelConfidence: 0.6})
	}
	assert.Equal(t, 0.6, p.Calibrate(Input{Base: 0.6}).Confidence)
}

func TestIsotonicShrinksUntilFitted(t *testing.T) {
	iso := NewIsotonic(10)
	assert.InDelta(t, 0.8*0.95, iso.Calibrate(0.8), 1e-12)
	assert.False(t, iso.Fit([]models.CalibrationSample{sample(0.5, true)}))

	var samples []models.CalibrationSample
	for i := 0; i < 5; i++ {
		samples = append(samples, sample(0.2, false), sample(0.8, true))
	}
	require.True(t, iso.Fit(samples))
	assert.True(t, iso.Fitted())
	assert.InDelta(t, 0.0, iso.Calibrate(0.1), 1e-12)
	assert.InDelta(t, 0.5, iso.Calibrate(0.5), 1e-12)
	assert.InDelta(t, 1.0, iso.Calibrate(0.95), 1e-12)

	prev := -1.0
	for p := 0.0; p <= 1.0; p += 0.05 {
		got := iso.Calibrate(p)
		assert.GreaterOrEqual(t, got, prev, "isotonic map must be monotonic")
		prev = got
	}
}

func TestIsotonicPoolsViolators(t *testing.T) {
	iso := NewIsotonic(4)
	require.True(t, iso.Fit([]models.CalibrationSample{
		sample(0.1, true), sample(0.2, false), sample(0.3, false), sample(0.9, true),
	}))
	// the first three pool to 1/3
	assert.InDelta(t, 1.0/3.0, iso.Calibrate(0.0), 1e-12)
}

func TestOnlineCalibratorLearnsFromBatches(t *testing.T) {
	c := NewOnlineCalibrator(5, 0.05)
	got, err := c.Calibrate(0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got, "untrained model passes through")

	for i := 0; i < 4; i++ {
		require.NoError(t, c.Observe(sample(0.5, true)))
	}
	assert.False(t, c.Trained())
	require.NoError(t, c.Observe(sample(0.5, true)))
	assert.True(t, c.Trained())

	got, err = c.Calibrate(0.5)
	require.NoError(t, err)
	assert.Greater(t, got, 0.5)
}

func TestFeedbackTrainsStagesOnTheirOwnInputs(t *testing.T) {
	p := NewPipeline(nil, nil, nil, Options{Statistical: true, BlueprintBoost: true, MinFitSamples: 10})
	blueprint := &models.BlueprintMatch{FitScore: 1, Quality: 1}
	matched := Input{Base: 0.5, Blueprint: blueprint}
	plain := Input{Base: 0.8}

	first := p.Calibrate(matched)
	assert.Equal(t, 0.5, first.Stages.Statistical)
	assert.InDelta(t, 0.475, first.Stages.Online, 1e-9)

	// matched suggestions are always accepted, plain ones always rejected
	for i := 0; i < 10; i++ {
		for _, tc := range []struct {
			in       Input
			accepted bool
		}{{matched, true}, {plain, false}} {
			out := p.Calibrate(tc.in)
			stages := out.Stages
			p.RecordFeedback(context.Background(), models.CalibrationSample{
				PredictedConfidence: out.Confidence,
				Outcome:             tc.accepted,
				Stages:              &stages,
				RecordedAt:          time.Now(),
			}, nil)
		}
	}

	accepted := p.Calibrate(matched).Confidence
	rejected := p.Calibrate(plain).Confidence
	assert.Greater(t, accepted, rejected, "accepted kind must outrank the rejected kind")
}

func TestOnlineFailureFallsBack(t *testing.T) {
	p := NewPipeline(nil, nil, nil, Options{Online: true}).WithOnlineModel(failingOnline{})
	assert.Equal(t, 0.7, p.Calibrate(Input{Base: 0.7}).Confidence)
	p.RecordFeedback(context.Background(), sample(0.7, true), nil)
}

func TestEnsembleWeightsFavourAccurateModels(t *testing.T) {
	store := NewStore(0, 10)
	e := NewEnsembleQualityScorer(store)

	initial := e.Weights()
	assert.InDelta(t, 0.25, initial[ModelLift], 1e-12)

	for i := 0; i < 12; i++ {
		e.Update(map[string]float64{
			ModelConfidence: 0.9,
			ModelFrequency:  0.5,
			ModelLift:       0.1,
			ModelValidation: 0.7,
		}, true)
	}
	w := e.Weights()
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, w[ModelConfidence], w[ModelValidation])
	assert.Greater(t, w[ModelValidation], w[ModelFrequency])
	assert.Greater(t, w[ModelFrequency], w[ModelLift])
	assert.Len(t, store.RecentErrors(ModelLift), 10, "error window keeps the last k errors")

	score, ok := e.Score(map[string]float64{ModelConfidence: 1, ModelLift: 0})
	require.True(t, ok)
	assert.Greater(t, score, 0.5)
}

func TestEnsembleKeepsPriorForUnseenModels(t *testing.T) {
	e := NewEnsembleQualityScorer(NewStore(0, 10))
	for i := 0; i < 5; i++ {
		e.Update(map[string]float64{ModelConfidence: 0.9, ModelValidation: 0.4}, true)
	}

	w := e.Weights()
	assert.InDelta(t, 0.25, w[ModelLift], 1e-12)
	assert.InDelta(t, 0.25, w[ModelFrequency], 1e-12)
	assert.Greater(t, w[ModelConfidence], w[ModelValidation])
	assert.InDelta(t, 0.5, w[ModelConfidence]+w[ModelValidation], 1e-9)

	score, ok := e.Score(map[string]float64{ModelLift: 0.8})
	require.True(t, ok)
	assert.InDelta(t, 0.8, score, 1e-9)
}

func TestUncertaintyBounds(t *testing.T) {
	var samples []models.CalibrationSample
	for i := 0; i < 50; i++ {
		samples = append(samples, sample(0.7, i%3 != 0))
	}
	u := BetaUncertainty{}
	for _, p := range []float64{0, 0.01, 0.3, 0.7, 0.99, 1} {
		est, err := u.Estimate(p, samples)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, est.LowerBound, 0.0)
		assert.LessOrEqual(t, est.LowerBound, est.Mean)
		assert.LessOrEqual(t, est.Mean, est.UpperBound)
		assert.LessOrEqual(t, est.UpperBound, 1.0)
	}

	wide, _ := u.Estimate(0.7, nil)
	narrow, _ := u.Estimate(0.7, samples)
	assert.Less(t, narrow.Std, wide.Std, "more evidence narrows the interval")
}

func TestBoostNeverExceedsOne(t *testing.T) {
	match := models.BlueprintMatch{FitScore: 1, Quality: 1}
	assert.Equal(t, 1.0, Boost(0.95, match, 0.1, 0.3))
	assert.InDelta(t, 0.5+0.1, Boost(0.5, models.BlueprintMatch{}, 0.1, 0.3), 1e-12)
	assert.InDelta(t, 0.5+0.1+0.2*0.8*0.5, Boost(0.5, models.BlueprintMatch{FitScore: 0.8, Quality: 0.5}, 0.1, 0.3), 1e-12)
}

func TestConfidenceBoundsAcrossStages(t *testing.T) {
	p := NewPipeline(nil, nil, nil, Options{
		Statistical: true, Online: true, Ensemble: true, Uncertainty: true, BlueprintBoost: true,
	})
	for i := 0; i < 30; i++ {
		p.RecordFeedback(context.Background(), sample(float64(i%10)/10, i%2 == 0), map[string]float64{
			ModelConfidence: float64(i%10) / 10, ModelLift: 1,
		})
	}
	for _, base := range []float64{-0.5, 0, 0.3, 0.9, 1, 1.7} {
		out := p.Calibrate(Input{
			Base:            base,
			Components:      map[string]float64{ModelConfidence: base, ModelLift: 1.4},
			Blueprint:       &models.BlueprintMatch{FitScore: 1, Quality: 1},
			WantUncertainty: true,
		})
		assert.GreaterOrEqual(t, out.Confidence, 0.0)
		assert.LessOrEqual(t, out.Confidence, 1.0)
		require.NotNil(t, out.Estimate)
		assert.LessOrEqual(t, out.Estimate.LowerBound, out.Estimate.UpperBound)
	}
}

func TestRecordFeedbackConcurrentWriters(t *testing.T) {
	persister := &memoryPersister{}
	p := NewPipeline(nil, NewStore(0, 10), persister, Options{Statistical: true, Online: true, Ensemble: true})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.RecordFeedback(context.Background(), sample(0.6, i%2 == 0), map[string]float64{ModelConfidence: 0.6})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 40, p.Store().Len())
	assert.Len(t, persister.samples, 40)
	assert.Len(t, p.Store().RecentErrors(ModelConfidence), 10)
}

func TestRestoreFromPersister(t *testing.T) {
	persister := &memoryPersister{}
	for i := 0; i < 12; i++ {
		persister.samples = append(persister.samples, sample(0.8, true))
	}
	p := NewPipeline(nil, nil, persister, Options{Statistical: true, MinFitSamples: 10})
	require.NoError(t, p.Restore(context.Background(), 100))
	assert.Equal(t, 12, p.Store().Len())
	assert.Equal(t, 1.0, p.Calibrate(Input{Base: 0.8}).Confidence)
}

func TestPersistFailureDoesNotRejectFeedback(t *testing.T) {
	p := NewPipeline(nil, nil, &memoryPersister{fail: true}, Options{})
	assert.Equal(t, 1, p.RecordFeedback(context.Background(), sample(0.5, true), nil))
}
