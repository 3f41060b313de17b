package mcl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultFilterConfig(t *testing.T) {
	cfg := DefaultFilterConfig()

	if cfg.Particles != 200 {
		t.Errorf("Particles = %d, want 200", cfg.Particles)
	}
	if cfg.ObservationSigma != 0.05 {
		t.Errorf("ObservationSigma = %g, want 0.05", cfg.ObservationSigma)
	}
	if cfg.RangeBoundMultiplier != 3.0 {
		t.Errorf("RangeBoundMultiplier = %g, want 3.0", cfg.RangeBoundMultiplier)
	}
	if cfg.SurvivorFraction != 0.20 {
		t.Errorf("SurvivorFraction = %g, want 0.20", cfg.SurvivorFraction)
	}
	if cfg.WinnerFraction != 0.03 {
		t.Errorf("WinnerFraction = %g, want 0.03", cfg.WinnerFraction)
	}
	if cfg.ReseedEvery != 5 {
		t.Errorf("ReseedEvery = %d, want 5", cfg.ReseedEvery)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_Partial(t *testing.T) {
	cfg := FilterConfig{Particles: 64, ObservationSigma: 0.1}
	cfg.ApplyDefaults()

	if cfg.Particles != 64 {
		t.Errorf("Particles = %d, explicit value was overwritten", cfg.Particles)
	}
	if cfg.ObservationSigma != 0.1 {
		t.Errorf("ObservationSigma = %g, explicit value was overwritten", cfg.ObservationSigma)
	}
	if cfg.MotionNoise != 0.01 {
		t.Errorf("MotionNoise = %g, want default 0.01", cfg.MotionNoise)
	}
	if cfg.InitNoise.X != 0.1 {
		t.Errorf("InitNoise.X = %g, want default 0.1", cfg.InitNoise.X)
	}
	if cfg.ReseedEvery != 5 {
		t.Errorf("ReseedEvery = %d, want default 5", cfg.ReseedEvery)
	}
}

func TestFilterConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FilterConfig)
		wantErr bool
	}{
		{"defaults ok", func(c *FilterConfig) {}, false},
		{"one particle", func(c *FilterConfig) { c.Particles = 1 }, true},
		{"negative sigma", func(c *FilterConfig) { c.ObservationSigma = -0.1 }, true},
		{"zero bound", func(c *FilterConfig) { c.RangeBoundMultiplier = 0 }, true},
		{"survivor fraction one", func(c *FilterConfig) { c.SurvivorFraction = 1.0 }, true},
		{"winner above survivor", func(c *FilterConfig) { c.WinnerFraction = 0.5 }, true},
		{"zero reseed cadence", func(c *FilterConfig) { c.ReseedEvery = 0 }, true},
		{"negative reseed cadence", func(c *FilterConfig) { c.ReseedEvery = -3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFilterConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("filter:\n  particles: 50\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Filter.Particles != 50 {
		t.Errorf("Particles = %d, want 50", config.Filter.Particles)
	}
	if config.Filter.MotionNoise != 0.01 {
		t.Errorf("MotionNoise = %g, want default", config.Filter.MotionNoise)
	}
	if config.Tracker.MaxHypotheses != 4 {
		t.Errorf("MaxHypotheses = %d, want default 4", config.Tracker.MaxHypotheses)
	}
	if config.Sensor.Frame != "laser" {
		t.Errorf("Sensor.Frame = %s, want default laser", config.Sensor.Frame)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("filter: [broken"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfig_MapNeedsResolution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("map:\n  image: floor.png\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for map image without resolution")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := &Config{
		Filter: DefaultFilterConfig(),
		MQTT: MQTTConfig{
			Broker:        "mqtt://localhost:1883",
			OdometryTopic: "robot/odom",
			ScanTopic:     "robot/scan",
		},
		Map: MapConfig{
			Image:      "floor.png",
			Resolution: 0.05,
			OriginX:    -5,
			OriginY:    -5,
		},
		Sensor: SensorConfig{Frame: "laser", X: 0.1},
	}

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.MQTT.Broker != original.MQTT.Broker {
		t.Errorf("Broker = %s, want %s", loaded.MQTT.Broker, original.MQTT.Broker)
	}
	if loaded.Map.Resolution != 0.05 {
		t.Errorf("Resolution = %g, want 0.05", loaded.Map.Resolution)
	}
	if loaded.Sensor.X != 0.1 {
		t.Errorf("Sensor.X = %g, want 0.1", loaded.Sensor.X)
	}
	if loaded.Filter.Particles != original.Filter.Particles {
		t.Errorf("Particles = %d, want %d", loaded.Filter.Particles, original.Filter.Particles)
	}
}
