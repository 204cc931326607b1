package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

func TestCalibrationRepoRoundTrip(t *testing.T) {
	repo, err := NewCalibrationRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.SaveSample(ctx, models.CalibrationSample{
			SuggestionID:        "s" + string(rune('a'+i)),
			PredictedConfidence: 0.5 + 0.1*float64(i),
			Outcome:             i%2 == 0,
			Features:            map[string]float64{"confidence": 0.5},
			Stages:              &models.StageInputs{Statistical: 0.4, Online: 0.38},
			RecordedAt:          base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, repo.SaveSample(ctx, models.CalibrationSample{
		SuggestionID:        "legacy",
		PredictedConfidence: 0.7,
		RecordedAt:          base.Add(-time.Hour),
	}))

	all, err := repo.LoadSamples(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "legacy", all[0].SuggestionID)
	assert.Nil(t, all[0].Stages)
	assert.Equal(t, 0.7, all[0].StatisticalInput())
	assert.Equal(t, "sa", all[1].SuggestionID)
	assert.InDelta(t, 0.5, all[1].Features["confidence"], 1e-9)
	require.NotNil(t, all[1].Stages)
	assert.Equal(t, models.StageInputs{Statistical: 0.4, Online: 0.38}, *all[1].Stages)

	recent, err := repo.LoadSamples(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "sd", recent[0].SuggestionID)
	assert.Equal(t, "se", recent[1].SuggestionID)
	assert.True(t, recent[1].Outcome)
}

func TestCalibrationRepoFeedback(t *testing.T) {
	repo, err := NewCalibrationRepo(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	require.NoError(t, repo.SaveFeedback(ctx, models.Feedback{SuggestionID: "s1", Accepted: true, Rating: 5, SubmittedAt: time.Now()}))
	n, err := repo.CountFeedback(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
