package models

// Context provider kinds.
const (
	ContextWeather  = "weather"
	ContextEnergy   = "energy"
	ContextSun      = "sun"
	ContextCalendar = "calendar"
)

// ContextSnapshot holds live readings keyed by provider kind. A missing kind means
// the provider was unavailable.
type ContextSnapshot map[string]map[string]string

// Available reports whether kind produced a reading.
func (s ContextSnapshot) Available(kind string) bool {
	_, ok := s[kind]
	return ok
}
