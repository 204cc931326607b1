package homecontext

import (
	"context"
	"fmt"
	"time"

	"github.com/sj14/astral/pkg/astral"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// SunProvider computes sun events locally from the home's coordinates.
type SunProvider struct {
	observer astral.Observer
	now      func() time.Time
}

// NewSunProvider constructs a SunProvider; now defaults to time.Now.
func NewSunProvider(latitude, longitude float64, now func() time.Time) *SunProvider {
	if now == nil {
		now = time.Now
	}
	return &SunProvider{
		observer: astral.Observer{Latitude: latitude, Longitude: longitude},
		now:      now,
	}
}

// Kind implements Provider.
func (p *SunProvider) Kind() string {
	return models.ContextSun
}

// Fetch implements Provider.
func (p *SunProvider) Fetch(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := p.now().UTC()

	dawn, err := astral.Dawn(p.observer, now, astral.DepressionCivil)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate civil dawn: %w", err)
	}
	sunrise, err := astral.Sunrise(p.observer, now)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate sunrise: %w", err)
	}
	sunset, err := astral.Sunset(p.observer, now)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate sunset: %w", err)
	}
	dusk, err := astral.Dusk(p.observer, now, astral.DepressionCivil)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate civil dusk: %w", err)
	}

	state := "below_horizon"
	if now.After(sunrise) && now.Before(sunset) {
		state = "above_horizon"
	}
	return map[string]string{
		"state":   state,
		"dawn":    dawn.UTC().Format(time.RFC3339),
		"sunrise": sunrise.UTC().Format(time.RFC3339),
		"sunset":  sunset.UTC().Format(time.RFC3339),
		"dusk":    dusk.UTC().Format(time.RFC3339),
	}, nil
}
