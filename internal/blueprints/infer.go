package blueprints

import (
	"sort"
	"strings"
	"unicode"
)

// keywordTypes maps description words to device types. Types are either a domain or
// domain:device_class.
var keywordTypes = map[string]string{
	"motion":      "binary_sensor:motion",
	"occupancy":   "binary_sensor:occupancy",
	"presence":    "binary_sensor:occupancy",
	"door":        "binary_sensor:door",
	"window":      "binary_sensor:window",
	"contact":     "binary_sensor:opening",
	"leak":        "binary_sensor:moisture",
	"smoke":       "binary_sensor:smoke",
	"light":       "light",
	"lights":      "light",
	"lamp":        "light",
	"bulb":        "light",
	"dimmer":      "light",
	"thermostat":  "climate",
	"heating":     "climate",
	"cooling":     "climate",
	"hvac":        "climate",
	"climate":     "climate",
	"blind":       "cover",
	"blinds":      "cover",
	"shade":       "cover",
	"shades":      "cover",
	"curtain":     "cover",
	"curtains":    "cover",
	"garage":      "cover",
	"lock":        "lock",
	"tv":          "media_player",
	"television":  "media_player",
	"speaker":     "media_player",
	"media":       "media_player",
	"fan":         "fan",
	"plug":        "switch",
	"outlet":      "switch",
	"switch":      "switch",
	"vacuum":      "vacuum",
	"temperature": "sensor:temperature",
	"humidity":    "sensor:humidity",
	"illuminance": "sensor:illuminance",
	"price":       "sensor:monetary",
	"tariff":      "sensor:monetary",
	"sun":         "sun",
	"sunset":      "sun",
	"sunrise":     "sun",
	"weather":     "weather",
	"forecast":    "weather",
	"calendar":    "calendar",
	"alarm":       "alarm_control_panel",
}

// InferDeviceTypes extracts device types from free text using a fixed keyword table.
// The result is sorted and free of duplicates.
func InferDeviceTypes(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{})
	for _, w := range words {
		if t, ok := keywordTypes[w]; ok {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func splitType(t string) (domain, class string) {
	t = strings.ToLower(strings.TrimSpace(t))
	if idx := strings.IndexByte(t, ':'); idx >= 0 {
		return t[:idx], t[idx+1:]
	}
	return t, ""
}

// typesMatch compares device types; a bare domain matches any class of that domain.
func typesMatch(a, b string) bool {
	da, ca := splitType(a)
	db, cb := splitType(b)
	if da != db {
		return false
	}
	return ca == "" || cb == "" || ca == cb
}
