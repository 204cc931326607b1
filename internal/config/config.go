package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the synergy engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Clients     ClientsConfig     `yaml:"clients"`
	Logging     LoggingConfig     `yaml:"logging"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Noise       NoiseConfig       `yaml:"noise"`
	Mining      MiningConfig      `yaml:"mining"`
	Validation  ValidationConfig  `yaml:"validation"`
	Synergy     SynergyConfig     `yaml:"synergy"`
	Blueprints  BlueprintConfig   `yaml:"blueprints"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Context     ContextConfig     `yaml:"context"`
	Rules       RulesConfig       `yaml:"rules"`
	Cache       CacheConfig       `yaml:"cache"`
	Storage     StorageConfig     `yaml:"storage"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
}

// ServerConfig controls gRPC and HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups integrations with the home platform.
type ClientsConfig struct {
	Core  CoreClientConfig  `yaml:"core"`
	Kafka KafkaClientConfig `yaml:"kafka"`
}

// CoreClientConfig configures access to the home core registry and recorder APIs.
type CoreClientConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	Token        string        `yaml:"token"`
	EntitiesPath string        `yaml:"entitiesPath"`
	DevicesPath  string        `yaml:"devicesPath"`
	EventsPath   string        `yaml:"eventsPath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// KafkaClientConfig switches event ingestion to a state-change topic.
type KafkaClientConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Brokers   []string      `yaml:"brokers"`
	Topic     string        `yaml:"topic"`
	Partition int           `yaml:"partition"`
	MaxWait   time.Duration `yaml:"maxWait"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AnalysisConfig controls scheduling and the event window.
type AnalysisConfig struct {
	Interval           time.Duration `yaml:"interval"`
	Lookback           time.Duration `yaml:"lookback"`
	UpstreamTimeout    time.Duration `yaml:"upstreamTimeout"`
	IncludeUncertainty bool          `yaml:"includeUncertainty"`
	DetectAnomalies    bool          `yaml:"detectAnomalies"`
	AnomalyThreshold   float64       `yaml:"anomalyThreshold"`
	PatternSuggestions bool          `yaml:"patternSuggestions"`
	SuggestionTTL      time.Duration `yaml:"suggestionTTL"`
}

// NoiseConfig extends the built-in noise filter lists.
type NoiseConfig struct {
	ExcludedDomains    []string `yaml:"excludedDomains"`
	PassiveDomains     []string `yaml:"passiveDomains"`
	DiagnosticPatterns []string `yaml:"diagnosticPatterns"`
}

// MiningConfig controls pattern thresholds.
type MiningConfig struct {
	MinSupport              int           `yaml:"minSupport"`
	MinSupportRatio         float64       `yaml:"minSupportRatio"`
	MinConfidence           float64       `yaml:"minConfidence"`
	Window                  time.Duration `yaml:"window"`
	BucketMinutes           int           `yaml:"bucketMinutes"`
	TimeOfDayMinOccurrences int           `yaml:"timeOfDayMinOccurrences"`
	TimeOfDayMinConfidence  float64       `yaml:"timeOfDayMinConfidence"`
	MergeWindowMinutes      int           `yaml:"mergeWindowMinutes"`
}

// ValidationConfig controls the cross validator.
type ValidationConfig struct {
	HighConfidence   float64 `yaml:"highConfidence"`
	ContradictionGap float64 `yaml:"contradictionGap"`
	ReinforceMinutes int     `yaml:"reinforceMinutes"`
	DropContradicted bool    `yaml:"dropContradicted"`
}

// SynergyConfig bounds the synergy detector.
type SynergyConfig struct {
	MaxSynergies             int     `yaml:"maxSynergies"`
	PairConfidenceFloor      float64 `yaml:"pairConfidenceFloor"`
	MaxChainDepth            int     `yaml:"maxChainDepth"`
	MaxDevicesPerScene       int     `yaml:"maxDevicesPerScene"`
	MaxDevicesPerContextType int     `yaml:"maxDevicesPerContextType"`
	ScheduleWindowMinutes    int     `yaml:"scheduleWindowMinutes"`
	TemplatesPath            string  `yaml:"templatesPath"`
}

// BlueprintConfig selects the blueprint catalogue.
type BlueprintConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
	MinScore   float64       `yaml:"minScore"`
	MinQuality float64       `yaml:"minQuality"`
}

// CalibrationConfig toggles calibration stages.
type CalibrationConfig struct {
	Statistical    bool    `yaml:"statistical"`
	Online         bool    `yaml:"online"`
	Ensemble       bool    `yaml:"ensemble"`
	Uncertainty    bool    `yaml:"uncertainty"`
	BlueprintBoost bool    `yaml:"blueprintBoost"`
	MinFitSamples  int     `yaml:"minFitSamples"`
	OnlineMinBatch int     `yaml:"onlineMinBatch"`
	LearningRate   float64 `yaml:"learningRate"`
	EnsembleWindow int     `yaml:"ensembleWindow"`
	EnsembleBlend  float64 `yaml:"ensembleBlend"`
	BaseBoost      float64 `yaml:"baseBoost"`
	MaxBoost       float64 `yaml:"maxBoost"`
	MaxSamples     int     `yaml:"maxSamples"`
}

// ContextConfig configures optional context providers.
type ContextConfig struct {
	WeatherURL  string        `yaml:"weatherURL"`
	EnergyURL   string        `yaml:"energyURL"`
	CalendarURL string        `yaml:"calendarURL"`
	Latitude    float64       `yaml:"latitude"`
	Longitude   float64       `yaml:"longitude"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cacheTTL"`
	RatePerMin  int           `yaml:"ratePerMinute"`
}

// RulesConfig controls explanation rule-pack loading.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls in-process caching of expensive lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	EntitiesTTL  time.Duration `yaml:"entitiesTTL"`
	BlueprintTTL time.Duration `yaml:"blueprintTTL"`
	CleanupEvery time.Duration `yaml:"cleanupEvery"`
}

// StorageConfig points at local persistence.
type StorageConfig struct {
	CalibrationDSN string `yaml:"calibrationDSN"`
	PatternsDir    string `yaml:"patternsDir"`
}

// MQTTConfig controls suggestion publishing.
type MQTTConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"clientID"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Topic    string        `yaml:"topic"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SYNERGY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Mining.MinSupport <= 0 {
		return fmt.Errorf("mining.minSupport must be positive")
	}
	if c.Mining.MinSupportRatio < 0 || c.Mining.MinSupportRatio > 1 {
		return fmt.Errorf("mining.minSupportRatio must be within [0,1]")
	}
	if c.Mining.MinConfidence < 0 || c.Mining.MinConfidence > 1 {
		return fmt.Errorf("mining.minConfidence must be within [0,1]")
	}
	if c.Blueprints.MinScore < 0 || c.Blueprints.MinScore > 1 {
		return fmt.Errorf("blueprints.minScore must be within [0,1]")
	}
	if c.Calibration.BaseBoost > c.Calibration.MaxBoost {
		return fmt.Errorf("calibration.baseBoost must not exceed maxBoost")
	}
	if c.Synergy.MaxChainDepth != 0 && (c.Synergy.MaxChainDepth < 3 || c.Synergy.MaxChainDepth > 4) {
		return fmt.Errorf("synergy.maxChainDepth must be 3 or 4")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			HTTPAddress:     ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Core: CoreClientConfig{
				EntitiesPath: "/api/v1/registry/entities",
				DevicesPath:  "/api/v1/registry/devices",
				EventsPath:   "/api/v1/history/events",
				Timeout:      5 * time.Second,
			},
			Kafka: KafkaClientConfig{
				Topic:   "home.state_changes",
				MaxWait: 2 * time.Second,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Analysis: AnalysisConfig{
			Interval:           6 * time.Hour,
			Lookback:           14 * 24 * time.Hour,
			UpstreamTimeout:    10 * time.Second,
			DetectAnomalies:    true,
			AnomalyThreshold:   2.5,
			PatternSuggestions: true,
			SuggestionTTL:      7 * 24 * time.Hour,
		},
		Mining: MiningConfig{
			MinSupport:              10,
			MinConfidence:           0.75,
			Window:                  30 * time.Second,
			BucketMinutes:           15,
			TimeOfDayMinOccurrences: 5,
			TimeOfDayMinConfidence:  0.2,
			MergeWindowMinutes:      15,
		},
		Validation: ValidationConfig{
			HighConfidence:   0.9,
			ContradictionGap: 0.5,
			ReinforceMinutes: 15,
			DropContradicted: false,
		},
		Synergy: SynergyConfig{
			MaxSynergies:             50,
			PairConfidenceFloor:      0.7,
			MaxChainDepth:            4,
			MaxDevicesPerScene:       10,
			MaxDevicesPerContextType: 5,
			ScheduleWindowMinutes:    30,
		},
		Blueprints: BlueprintConfig{
			Enabled:    true,
			Path:       "configs/blueprints.yaml",
			Timeout:    3 * time.Second,
			MinScore:   0.6,
			MinQuality: 0.5,
		},
		Calibration: CalibrationConfig{
			Statistical:    true,
			Online:         true,
			Ensemble:       true,
			Uncertainty:    true,
			BlueprintBoost: true,
			MinFitSamples:  10,
			OnlineMinBatch: 5,
			LearningRate:   0.05,
			EnsembleWindow: 10,
			EnsembleBlend:  0.3,
			BaseBoost:      0.1,
			MaxBoost:       0.3,
			MaxSamples:     5000,
		},
		Context: ContextConfig{
			Timeout:    3 * time.Second,
			CacheTTL:   15 * time.Minute,
			RatePerMin: 30,
		},
		Rules: RulesConfig{Path: "configs/rules/explanations.yaml"},
		Cache: CacheConfig{
			Enabled:      true,
			EntitiesTTL:  5 * time.Minute,
			BlueprintTTL: 30 * time.Minute,
			CleanupEvery: 10 * time.Minute,
		},
		Storage: StorageConfig{
			CalibrationDSN: "data/calibration.db",
			PatternsDir:    "data/patterns",
		},
		MQTT: MQTTConfig{
			ClientID: "mirador-synergy",
			Topic:    "mirador/synergy/suggestions",
			Timeout:  5 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SYNERGY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SYNERGY_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("SYNERGY_CORE_BASE_URL"); v != "" {
		cfg.Clients.Core.BaseURL = v
	}
	if v := os.Getenv("SYNERGY_CORE_TOKEN"); v != "" {
		cfg.Clients.Core.Token = v
	}
	if v := os.Getenv("SYNERGY_CORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.Core.Timeout = d
		}
	}
	if v := os.Getenv("SYNERGY_KAFKA_BROKERS"); v != "" {
		cfg.Clients.Kafka.Brokers = splitList(v)
		cfg.Clients.Kafka.Enabled = true
	}
	if v := os.Getenv("SYNERGY_KAFKA_TOPIC"); v != "" {
		cfg.Clients.Kafka.Topic = v
	}
	if v := os.Getenv("SYNERGY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SYNERGY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SYNERGY_ANALYSIS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.Interval = d
		}
	}
	if v := os.Getenv("SYNERGY_ANALYSIS_LOOKBACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analysis.Lookback = d
		}
	}
	if v := os.Getenv("SYNERGY_MIN_SUPPORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mining.MinSupport = n
		}
	}
	if v := os.Getenv("SYNERGY_MIN_SUPPORT_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Mining.MinSupportRatio = f
		}
	}
	if v := os.Getenv("SYNERGY_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Mining.MinConfidence = f
		}
	}
	if v := os.Getenv("SYNERGY_MAX_SYNERGIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Synergy.MaxSynergies = n
		}
	}
	if v := os.Getenv("SYNERGY_BLUEPRINTS_PATH"); v != "" {
		cfg.Blueprints.Path = v
	}
	if v := os.Getenv("SYNERGY_BLUEPRINTS_URL"); v != "" {
		cfg.Blueprints.Endpoint = v
	}
	if v := os.Getenv("SYNERGY_BLUEPRINTS_API_KEY"); v != "" {
		cfg.Blueprints.APIKey = v
	}
	if v := os.Getenv("SYNERGY_BLUEPRINTS_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Blueprints.MinScore = f
		}
	}
	if v := os.Getenv("SYNERGY_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("SYNERGY_TEMPLATES_PATH"); v != "" {
		cfg.Synergy.TemplatesPath = v
	}
	if v := os.Getenv("SYNERGY_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("SYNERGY_CALIBRATION_DSN"); v != "" {
		cfg.Storage.CalibrationDSN = v
	}
	if v := os.Getenv("SYNERGY_PATTERNS_DIR"); v != "" {
		cfg.Storage.PatternsDir = v
	}
	if v := os.Getenv("SYNERGY_WEATHER_URL"); v != "" {
		cfg.Context.WeatherURL = v
	}
	if v := os.Getenv("SYNERGY_ENERGY_URL"); v != "" {
		cfg.Context.EnergyURL = v
	}
	if v := os.Getenv("SYNERGY_CALENDAR_URL"); v != "" {
		cfg.Context.CalendarURL = v
	}
	if v := os.Getenv("SYNERGY_LATITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Context.Latitude = f
		}
	}
	if v := os.Getenv("SYNERGY_LONGITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Context.Longitude = f
		}
	}
	if v := os.Getenv("SYNERGY_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("SYNERGY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("SYNERGY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("SYNERGY_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
