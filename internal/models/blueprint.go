package models

// BlueprintTemplate is an externally sourced automation template.
type BlueprintTemplate struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	UseCase      string   `json:"use_case" yaml:"use_case"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	DeviceTypes  []string `json:"device_types,omitempty" yaml:"device_types"`
	Integrations []string `json:"integrations,omitempty" yaml:"integrations"`
	Quality      float64  `json:"quality" yaml:"quality"`
}

// BlueprintMatch scores how well a blueprint fits a candidate suggestion.
type BlueprintMatch struct {
	BlueprintID  string  `json:"blueprint_id"`
	FitScore     float64 `json:"fit_score"`
	DeviceMatch  bool    `json:"device_match"`
	UseCaseMatch bool    `json:"use_case_match"`
	Quality      float64 `json:"quality"`
}
