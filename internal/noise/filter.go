package noise

import (
	"strings"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

var defaultExcludedDomains = []string{
	"image", "camera", "update", "event", "persistent_notification", "tts", "stt",
	"conversation", "system_log", "logger", "recorder", "group", "automation", "script",
	"zone", "sun",
}

var defaultPassiveDomains = []string{
	"sensor", "binary_sensor", "weather", "device_tracker", "person", "calendar",
	"sun", "zone",
}

var defaultDiagnosticPatterns = []string{
	"cpu", "signal_strength", "rssi", "linkquality", "link_quality", "battery",
	"coordinator", "uptime", "firmware", "last_seen", "memory", "disk_", "wifi",
}

var diagnosticButtons = []string{"restart", "reboot", "identify", "ping", "reset"}

// controllable domains accept service calls that change state.
var controllableDomains = map[string]struct{}{
	"light": {}, "switch": {}, "fan": {}, "climate": {}, "cover": {}, "lock": {},
	"media_player": {}, "vacuum": {}, "humidifier": {}, "water_heater": {},
	"scene": {}, "input_boolean": {}, "valve": {}, "siren": {}, "alarm_control_panel": {},
	"number": {}, "select": {},
}

// Options extends the built-in classification lists.
type Options struct {
	ExcludedDomains    []string
	PassiveDomains     []string
	DiagnosticPatterns []string
}

// Filter classifies entities as actionable, passive or system noise.
type Filter struct {
	excluded    map[string]struct{}
	passive     map[string]struct{}
	diagnostics []string
}

// NewFilter returns a Filter seeded with the built-in lists plus opts.
func NewFilter(opts Options) *Filter {
	f := &Filter{
		excluded: make(map[string]struct{}),
		passive:  make(map[string]struct{}),
	}
	for _, d := range append(append([]string{}, defaultExcludedDomains...), opts.ExcludedDomains...) {
		f.excluded[strings.ToLower(d)] = struct{}{}
	}
	for _, d := range append(append([]string{}, defaultPassiveDomains...), opts.PassiveDomains...) {
		f.passive[strings.ToLower(d)] = struct{}{}
	}
	f.diagnostics = append(f.diagnostics, defaultDiagnosticPatterns...)
	for _, p := range opts.DiagnosticPatterns {
		f.diagnostics = append(f.diagnostics, strings.ToLower(p))
	}
	return f
}

// Default returns a Filter with only the built-in lists.
func Default() *Filter {
	return NewFilter(Options{})
}

// IsActionable reports whether state changes of entityID are worth mining.
func (f *Filter) IsActionable(entityID string) bool {
	domain, name, ok := models.SplitEntityID(strings.ToLower(entityID))
	if !ok {
		return false
	}
	if _, excluded := f.excluded[domain]; excluded {
		return false
	}
	switch domain {
	case "sensor", "binary_sensor":
		return !f.isDiagnostic(name)
	case "button":
		for _, p := range diagnosticButtons {
			if strings.Contains(name, p) {
				return false
			}
		}
	}
	return true
}

// IsPassive reports whether entityID only observes the home.
func (f *Filter) IsPassive(entityID string) bool {
	domain := models.DomainOf(strings.ToLower(entityID))
	_, ok := f.passive[domain]
	return ok
}

// IsControllable reports whether entityID can be the action side of an automation.
func (f *Filter) IsControllable(entityID string) bool {
	if !f.IsActionable(entityID) {
		return false
	}
	_, ok := controllableDomains[models.DomainOf(strings.ToLower(entityID))]
	return ok
}

// IsMeaningfulPair reports whether a and b can form a useful relationship.
func (f *Filter) IsMeaningfulPair(a, b string) bool {
	if a == b {
		return false
	}
	actA, actB := f.IsActionable(a), f.IsActionable(b)
	if !actA && !actB {
		return false
	}
	if f.IsPassive(a) && f.IsPassive(b) {
		return false
	}
	return true
}

// Actionable filters entities down to the actionable ones, preserving order.
func (f *Filter) Actionable(entities []models.Entity) []models.Entity {
	out := make([]models.Entity, 0, len(entities))
	for _, e := range entities {
		if f.IsActionable(e.EntityID) {
			out = append(out, e)
		}
	}
	return out
}

func (f *Filter) isDiagnostic(name string) bool {
	for _, p := range f.diagnostics {
		if p != "" && strings.Contains(name, p) {
			return true
		}
	}
	return false
}
