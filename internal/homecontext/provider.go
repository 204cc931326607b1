// Package homecontext fetches the external context (weather, energy prices, sun
// position, calendar) that context-aware synergies reason about.
package homecontext

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/config"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

// Provider returns the current readings of one context kind.
type Provider interface {
	Kind() string
	Fetch(ctx context.Context) (map[string]string, error)
}

// FromConfig builds the collector described by cfg. Providers without an endpoint
// (or without coordinates, for the sun) are left out.
func FromConfig(logger *slog.Logger, cfg config.ContextConfig) *Collector {
	providers := make([]Provider, 0, 4)
	endpoints := []struct{ kind, url string }{
		{models.ContextWeather, cfg.WeatherURL},
		{models.ContextEnergy, cfg.EnergyURL},
		{models.ContextCalendar, cfg.CalendarURL},
	}
	for _, ep := range endpoints {
		if ep.url == "" {
			continue
		}
		providers = append(providers, NewHTTPProvider(logger, ep.kind, ep.url, cfg.Timeout, cfg.RatePerMin))
	}
	if cfg.Latitude != 0 || cfg.Longitude != 0 {
		providers = append(providers, NewSunProvider(cfg.Latitude, cfg.Longitude, time.Now))
	}
	return NewCollector(logger, cfg.CacheTTL, cfg.Timeout, providers...)
}
