package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-synergy/internal/models"
)

// RuleEngine attaches human readable explanations to synergies based on YAML rules.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single explanation rule.
type Rule struct {
	ID          string    `yaml:"id"`
	Match       RuleMatch `yaml:"match"`
	Explanation string    `yaml:"explanation"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields match anything.
type RuleMatch struct {
	SynergyType   string   `yaml:"synergy_type"`
	Domains       []string `yaml:"domains"`
	ContextType   string   `yaml:"context_type"`
	SceneType     string   `yaml:"scene_type"`
	MinConfidence float64  `yaml:"min_confidence"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or missing, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("explanation rules loaded", slog.Int("rules", len(cfg.Rules)))
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Explain returns the explanations of every matching rule, falling back to a
// generic sentence per synergy type. A nil engine only yields the fallback.
func (e *RuleEngine) Explain(s models.Synergy) string {
	matched := make([]string, 0)
	if e != nil {
		for _, rule := range e.rules {
			if !ruleMatches(rule.Match, s) {
				continue
			}
			matched = appendUnique(matched, render(rule.Explanation, s))
		}
	}
	if len(matched) == 0 {
		return defaultExplanation(s)
	}
	return strings.Join(matched, " ")
}

func ruleMatches(m RuleMatch, s models.Synergy) bool {
	if m.SynergyType != "" && !strings.EqualFold(m.SynergyType, string(s.Type)) {
		return false
	}
	if m.ContextType != "" && !strings.EqualFold(m.ContextType, s.Context.ContextType) {
		return false
	}
	if m.SceneType != "" && !strings.EqualFold(m.SceneType, s.Context.SceneType) &&
		!strings.EqualFold(m.SceneType, s.Context.ActivityType) {
		return false
	}
	if m.MinConfidence > 0 && s.Confidence < m.MinConfidence {
		return false
	}
	if len(m.Domains) > 0 && !devicesInDomains(s.Devices, m.Domains) {
		return false
	}
	return true
}

func devicesInDomains(devices, domains []string) bool {
	for _, device := range devices {
		domain := models.DomainOf(device)
		for _, d := range domains {
			if strings.EqualFold(d, domain) {
				return true
			}
		}
	}
	return false
}

func render(tmpl string, s models.Synergy) string {
	area := s.Area
	if area == "" {
		area = "your home"
	}
	replacer := strings.NewReplacer(
		"{trigger}", s.TriggerEntity,
		"{action}", s.ActionEntity,
		"{area}", area,
		"{devices}", strings.Join(s.Devices, ", "),
		"{context}", s.Context.ContextType,
		"{count}", fmt.Sprintf("%d", len(s.Devices)),
	)
	return replacer.Replace(tmpl)
}

func defaultExplanation(s models.Synergy) string {
	switch s.Type {
	case models.SynergyDevicePair:
		return fmt.Sprintf("Automate %s whenever %s changes.", s.ActionEntity, s.TriggerEntity)
	case models.SynergyDeviceChain:
		return fmt.Sprintf("Link %s into one multi-step automation.", s.Context.ChainPath)
	case models.SynergySceneBased:
		return fmt.Sprintf("Group %d devices into a scene.", len(s.Devices))
	case models.SynergyContextAware:
		if s.ActionEntity == "" {
			return s.Rationale
		}
		return fmt.Sprintf("Let %s data drive %s.", s.Context.ContextType, s.ActionEntity)
	case models.SynergyScheduleBased:
		return fmt.Sprintf("Schedule %s around %s.", strings.Join(s.Devices, ", "), s.Context.TimeWindow)
	default:
		return s.Rationale
	}
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
