package synergy

import (
	"strings"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

var domainImpact = map[string]float64{
	"climate":             0.9,
	"water_heater":        0.85,
	"lock":                0.85,
	"alarm_control_panel": 0.8,
	"cover":               0.7,
	"fan":                 0.6,
	"light":               0.6,
	"switch":              0.55,
	"media_player":        0.5,
	"vacuum":              0.5,
}

// impactScore blends how much automating the action domain matters with how sure
// we are the behaviour exists.
func impactScore(actionEntity string, confidence float64) float64 {
	base, ok := domainImpact[models.DomainOf(actionEntity)]
	if !ok {
		base = 0.5
	}
	return clamp(0.6*base+0.4*confidence, 0, 1)
}

func friendly(entityID string) string {
	_, name, ok := models.SplitEntityID(entityID)
	if !ok {
		return entityID
	}
	return strings.ReplaceAll(name, "_", " ")
}

func sharedArea(index models.EntityIndex, ids ...string) string {
	area := ""
	for i, id := range ids {
		a := index.Area(id)
		if a == "" {
			return ""
		}
		if i == 0 {
			area = a
			continue
		}
		if a != area {
			return ""
		}
	}
	return area
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
