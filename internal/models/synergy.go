package models

// SynergyType enumerates the strategies that can propose an automation.
type SynergyType string

const (
	SynergyDevicePair    SynergyType = "device_pair"
	SynergyDeviceChain   SynergyType = "device_chain"
	SynergySceneBased    SynergyType = "scene_based"
	SynergyContextAware  SynergyType = "context_aware"
	SynergyScheduleBased SynergyType = "schedule_based"
)

// Complexity is a coarse estimate of how hard an automation is to set up.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Scene and activity kinds emitted by the scene strategy.
const (
	SceneAreaBased     = "area_based"
	SceneDomainBased   = "domain_based"
	SceneActivityBased = "activity_based"

	ActivityMovieMode = "movie_mode"
	ActivitySleepMode = "sleep_mode"
)

// Synergy is a proposed automation opportunity.
type Synergy struct {
	ID            string         `json:"synergy_id"`
	Type          SynergyType    `json:"synergy_type"`
	Devices       []string       `json:"devices"`
	TriggerEntity string         `json:"trigger_entity,omitempty"`
	ActionEntity  string         `json:"action_entity,omitempty"`
	Area          string         `json:"area,omitempty"`
	ImpactScore   float64        `json:"impact_score"`
	Confidence    float64        `json:"confidence"`
	Complexity    Complexity     `json:"complexity"`
	Rationale     string         `json:"rationale"`
	Depth         int            `json:"synergy_depth"`
	Context       SynergyContext `json:"context_metadata"`
}

// SynergyContext carries strategy specific details.
type SynergyContext struct {
	SceneType           string             `json:"scene_type,omitempty"`
	ActivityType        string             `json:"activity_type,omitempty"`
	ContextType         string             `json:"context_type,omitempty"`
	ContextEntity       string             `json:"context_entity,omitempty"`
	TimeWindow          string             `json:"time_window,omitempty"`
	ChainDevices        []string           `json:"chain_devices,omitempty"`
	ChainPath           string             `json:"chain_path,omitempty"`
	SupportingPatterns  []string           `json:"supporting_patterns,omitempty"`
	PatternSupportScore float64            `json:"pattern_support_score,omitempty"`
	ValidatedByPatterns bool               `json:"validated_by_patterns,omitempty"`
	Benefits            []string           `json:"benefits,omitempty"`
	EstimatedSavings    string             `json:"estimated_savings,omitempty"`
	LiveValues          map[string]string  `json:"live_values,omitempty"`
	Extra               map[string]float64 `json:"extra,omitempty"`
}

// DeviceKey joins the device list, used for grouping and tests.
func (s Synergy) DeviceKey() string {
	out := ""
	for i, d := range s.Devices {
		if i > 0 {
			out += ","
		}
		out += d
	}
	return out
}
