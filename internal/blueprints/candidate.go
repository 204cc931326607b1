package blueprints

import (
	"strings"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

var domainUseCase = map[string]string{
	"light":               "lighting",
	"climate":             "climate",
	"water_heater":        "energy",
	"fan":                 "climate",
	"cover":               "comfort",
	"lock":                "security",
	"alarm_control_panel": "security",
	"siren":               "security",
	"media_player":        "entertainment",
	"vacuum":              "cleaning",
}

// UseCaseFor maps the action entity onto a coarse use case.
func UseCaseFor(actionEntity string) string {
	if uc, ok := domainUseCase[models.DomainOf(actionEntity)]; ok {
		return uc
	}
	return "convenience"
}

// CandidateFromSynergy describes a synergy for blueprint matching.
func CandidateFromSynergy(s models.Synergy, index models.EntityIndex) Candidate {
	c := candidateFor(s.Devices, s.ActionEntity, index)
	if s.Context.ContextType == models.ContextEnergy {
		c.UseCase = "energy"
	}
	c.Keywords = append(c.Keywords, strings.Split(string(s.Type), "_")...)
	for _, extra := range []string{s.Context.SceneType, s.Context.ActivityType, s.Context.ContextType} {
		if extra != "" {
			c.Keywords = append(c.Keywords, strings.Split(extra, "_")...)
		}
	}
	c.Keywords = unique(c.Keywords)
	return c
}

// CandidateFromPattern describes a mined pattern for blueprint matching.
func CandidateFromPattern(p models.Pattern, index models.EntityIndex) Candidate {
	devices := p.Devices()
	action := ""
	if len(devices) > 0 {
		action = devices[len(devices)-1]
	}
	c := candidateFor(devices, action, index)
	switch p.Type {
	case models.PatternTimeOfDay:
		c.Keywords = append(c.Keywords, "schedule", "time")
	case models.PatternCoOccurrence:
		c.Keywords = append(c.Keywords, "trigger")
	}
	c.Keywords = unique(c.Keywords)
	return c
}

func candidateFor(devices []string, action string, index models.EntityIndex) Candidate {
	types := make([]string, 0, len(devices))
	domains := make([]string, 0, len(devices))
	for _, id := range devices {
		domain := models.DomainOf(id)
		if domain == "" {
			continue
		}
		domains = append(domains, domain)
		if class := index[id].DeviceClass; class != "" {
			types = append(types, domain+":"+class)
		} else {
			types = append(types, domain)
		}
	}
	return Candidate{
		DeviceTypes:  unique(types),
		UseCase:      UseCaseFor(action),
		Keywords:     unique(domains),
		Integrations: unique(domains),
	}
}
