package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNERGY_CONFIG", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Mining.MinSupport != 10 || cfg.Mining.MinConfidence != 0.75 {
		t.Fatalf("unexpected mining thresholds: %+v", cfg.Mining)
	}
	if cfg.Synergy.MaxSynergies != 50 || cfg.Synergy.MaxDevicesPerScene != 10 {
		t.Fatalf("unexpected synergy bounds: %+v", cfg.Synergy)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`
mining:
  minSupport: 5
  window: 45s
blueprints:
  minScore: 0.7
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SYNERGY_MIN_CONFIDENCE", "0.8")
	t.Setenv("SYNERGY_MIN_SUPPORT_RATIO", "0.05")
	t.Setenv("SYNERGY_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mining.MinSupport != 5 || cfg.Mining.Window != 45*time.Second {
		t.Fatalf("file values not applied: %+v", cfg.Mining)
	}
	if cfg.Mining.MinConfidence != 0.8 || cfg.Mining.MinSupportRatio != 0.05 {
		t.Fatalf("env override not applied: %+v", cfg.Mining)
	}
	if cfg.Blueprints.MinScore != 0.7 {
		t.Fatalf("expected blueprint min score 0.7, got %v", cfg.Blueprints.MinScore)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Fatalf("expected mqtt enabled by broker override: %+v", cfg.MQTT)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejectsBadBoost(t *testing.T) {
	cfg := Default()
	cfg.Calibration.BaseBoost = 0.4
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
