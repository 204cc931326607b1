package synergy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// ContextTemplate pairs a context source with the devices it should steer.
type ContextTemplate struct {
	ID                   string   `yaml:"id"`
	ContextType          string   `yaml:"context_type"`
	ContextDomains       []string `yaml:"context_domains"`
	ContextDeviceClasses []string `yaml:"context_device_classes"`
	ContextKeywords      []string `yaml:"context_keywords"`
	ActionDomains        []string `yaml:"action_domains"`
	Rationale            string   `yaml:"rationale"`
	Benefits             []string `yaml:"benefits"`
	EstimatedSavings     string   `yaml:"estimated_savings"`
	Confidence           float64  `yaml:"confidence"`
}

type templateFile struct {
	Templates []ContextTemplate `yaml:"templates"`
}

// DefaultTemplates returns the built-in context rules.
func DefaultTemplates() []ContextTemplate {
	return []ContextTemplate{
		{
			ID:                   "weather_climate",
			ContextType:          models.ContextWeather,
			ContextDomains:       []string{"weather", "sensor"},
			ContextDeviceClasses: []string{"temperature"},
			ContextKeywords:      []string{"outdoor", "outside", "forecast"},
			ActionDomains:        []string{"climate"},
			Rationale:            "Pre-heat or pre-cool {action} from {context}",
			Benefits:             []string{"comfort", "energy_savings"},
			EstimatedSavings:     "10-15% heating and cooling",
			Confidence:           0.7,
		},
		{
			ID:                   "weather_cover",
			ContextType:          models.ContextWeather,
			ContextDomains:       []string{"weather", "sensor"},
			ContextDeviceClasses: []string{"illuminance", "wind_speed"},
			ContextKeywords:      []string{"outdoor", "outside", "uv", "wind"},
			ActionDomains:        []string{"cover"},
			Rationale:            "Close {action} when {context} reports strong sun or wind",
			Benefits:             []string{"comfort", "protection"},
			EstimatedSavings:     "5-10% cooling",
			Confidence:           0.65,
		},
		{
			ID:                   "energy_price_climate",
			ContextType:          models.ContextEnergy,
			ContextDomains:       []string{"sensor"},
			ContextDeviceClasses: []string{"monetary"},
			ContextKeywords:      []string{"price", "tariff", "spot"},
			ActionDomains:        []string{"climate", "water_heater", "switch"},
			Rationale:            "Shift {action} to cheap hours reported by {context}",
			Benefits:             []string{"cost_savings", "grid_friendly"},
			EstimatedSavings:     "15-25% energy cost",
			Confidence:           0.7,
		},
		{
			ID:               "sun_lights",
			ContextType:      models.ContextSun,
			ContextDomains:   []string{"sun"},
			ActionDomains:    []string{"light"},
			Rationale:        "Turn on {action} at sunset using {context}",
			Benefits:         []string{"convenience", "security"},
			EstimatedSavings: "2-5% lighting",
			Confidence:       0.75,
		},
		{
			ID:               "sun_cover",
			ContextType:      models.ContextSun,
			ContextDomains:   []string{"sun"},
			ActionDomains:    []string{"cover"},
			Rationale:        "Open and close {action} with {context}",
			Benefits:         []string{"convenience", "privacy"},
			EstimatedSavings: "3-8% heating",
			Confidence:       0.7,
		},
		{
			ID:               "calendar_climate",
			ContextType:      models.ContextCalendar,
			ContextDomains:   []string{"calendar"},
			ActionDomains:    []string{"climate"},
			Rationale:        "Set back {action} while {context} shows everyone away",
			Benefits:         []string{"energy_savings"},
			EstimatedSavings: "8-12% heating",
			Confidence:       0.6,
		},
	}
}

// LoadTemplates reads context templates from YAML. A missing file yields nil so
// callers fall back to DefaultTemplates.
func LoadTemplates(path string) ([]ContextTemplate, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, nil
	}
	for _, t := range file.Templates {
		if t.ID == "" || t.ContextType == "" || len(t.ActionDomains) == 0 {
			return nil, fmt.Errorf("template %q: id, context_type and action_domains are required", t.ID)
		}
	}
	return file.Templates, nil
}

func (t ContextTemplate) matchesContext(e models.Entity) bool {
	if !containsFold(t.ContextDomains, e.Domain) {
		return false
	}
	if len(t.ContextDeviceClasses) == 0 && len(t.ContextKeywords) == 0 {
		return true
	}
	// dedicated domains such as weather.* need no further evidence
	if e.Domain != "sensor" && e.Domain != "binary_sensor" {
		return true
	}
	name := strings.ToLower(e.EntityID + " " + e.FriendlyName)
	for _, kw := range t.ContextKeywords {
		if strings.Contains(name, strings.ToLower(kw)) {
			return true
		}
	}
	// an unassigned sensor of the right class is taken as house-wide
	return e.AreaID == "" && e.DeviceClass != "" && containsFold(t.ContextDeviceClasses, e.DeviceClass)
}

func (d *Detector) contextAware(in input) []models.Synergy {
	actions := d.controllable(in)
	out := make([]models.Synergy, 0)
	for _, tmpl := range d.templates {
		for _, source := range in.entities {
			if !tmpl.matchesContext(source) {
				continue
			}
			paired := 0
			for _, action := range actions {
				if paired >= d.opts.MaxDevicesPerContextType {
					break
				}
				if !containsFold(tmpl.ActionDomains, action.Domain) {
					continue
				}
				if source.AreaID != "" && action.AreaID != source.AreaID {
					continue
				}
				out = append(out, d.contextSynergy(in, tmpl, source, action))
				paired++
			}
		}
	}
	return out
}

func (d *Detector) contextSynergy(in input, tmpl ContextTemplate, source, action models.Entity) models.Synergy {
	confidence := tmpl.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	var live map[string]string
	if values, ok := in.snapshot[tmpl.ContextType]; ok {
		live = make(map[string]string, len(values))
		for k, v := range values {
			live[k] = v
		}
		confidence += 0.05
	}
	confidence = clamp(confidence, 0, 1)
	rationale := strings.NewReplacer("{action}", friendly(action.EntityID), "{context}", friendly(source.EntityID)).Replace(tmpl.Rationale)
	return models.Synergy{
		ID:            uuid.NewString(),
		Type:          models.SynergyContextAware,
		Devices:       []string{source.EntityID, action.EntityID},
		TriggerEntity: source.EntityID,
		ActionEntity:  action.EntityID,
		Area:          action.AreaID,
		ImpactScore:   impactScore(action.EntityID, confidence),
		Confidence:    confidence,
		Complexity:    models.ComplexityMedium,
		Rationale:     rationale,
		Depth:         2,
		Context: models.SynergyContext{
			ContextType:      tmpl.ContextType,
			ContextEntity:    source.EntityID,
			Benefits:         append([]string(nil), tmpl.Benefits...),
			EstimatedSavings: tmpl.EstimatedSavings,
			LiveValues:       live,
		},
	}
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
