package mcl

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NoiseXYYaw holds per-axis standard deviations for a planar pose.
type NoiseXYYaw struct {
	X   float64 `yaml:"x" json:"x"`
	Y   float64 `yaml:"y" json:"y"`
	Yaw float64 `yaml:"yaw" json:"yaw"`
}

// FilterConfig tunes one particle filter instance. Zero values are
// replaced by defaults in ApplyDefaults, so a partial YAML file works.
type FilterConfig struct {
	Particles int    `yaml:"particles" json:"particles"`
	Seed      uint64 `yaml:"seed,omitempty" json:"seed,omitempty"` // 0 = time-based

	InitNoise   NoiseXYYaw `yaml:"initNoise" json:"initNoise"`
	MotionNoise float64    `yaml:"motionNoise" json:"motionNoise"` // proportional, scales the displacement
	ReseedNoise NoiseXYYaw `yaml:"reseedNoise" json:"reseedNoise"`

	ObservationSigma     float64 `yaml:"observationSigma" json:"observationSigma"`
	RangeBoundMultiplier float64 `yaml:"rangeBoundMultiplier" json:"rangeBoundMultiplier"`

	SurvivorFraction float64 `yaml:"survivorFraction" json:"survivorFraction"`
	WinnerFraction   float64 `yaml:"winnerFraction" json:"winnerFraction"`

	ReseedEvery int `yaml:"reseedEvery" json:"reseedEvery"`
}

// TrackerConfig tunes the multi-hypothesis layer.
type TrackerConfig struct {
	MaxHypotheses int `yaml:"maxHypotheses" json:"maxHypotheses"`
}

// MQTTConfig holds MQTT connection settings.
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	OdometryTopic string `yaml:"odometryTopic,omitempty" json:"odometryTopic,omitempty"`
	ScanTopic     string `yaml:"scanTopic,omitempty" json:"scanTopic,omitempty"`
}

// MapConfig points at the occupancy image the costmap is built from.
type MapConfig struct {
	Image      string  `yaml:"image" json:"image"`
	Resolution float64 `yaml:"resolution" json:"resolution"` // meters per cell
	OriginX    float64 `yaml:"originX" json:"originX"`
	OriginY    float64 `yaml:"originY" json:"originY"`
}

// SensorConfig describes where the range sensor is mounted on the
// robot body.
type SensorConfig struct {
	Frame string  `yaml:"frame" json:"frame"`
	X     float64 `yaml:"x" json:"x"`
	Y     float64 `yaml:"y" json:"y"`
	Yaw   float64 `yaml:"yaw" json:"yaw"`
}

// Config is the full configuration file.
type Config struct {
	Filter  FilterConfig  `yaml:"filter" json:"filter"`
	Tracker TrackerConfig `yaml:"tracker" json:"tracker"`
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Map     MapConfig     `yaml:"map" json:"map"`
	Sensor  SensorConfig  `yaml:"sensor" json:"sensor"`
}

// DefaultFilterConfig returns the stock filter tuning.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Particles:            200,
		InitNoise:            NoiseXYYaw{X: 0.1, Y: 0.1, Yaw: 0.05},
		MotionNoise:          0.01,
		ReseedNoise:          NoiseXYYaw{X: 0.01, Y: 0.01, Yaw: 0.005},
		ObservationSigma:     0.05,
		RangeBoundMultiplier: 3.0,
		SurvivorFraction:     0.20,
		WinnerFraction:       0.03,
		ReseedEvery:          5,
	}
}

// ApplyDefaults fills zero-valued tunables with their defaults.
func (fc *FilterConfig) ApplyDefaults() {
	def := DefaultFilterConfig()
	if fc.Particles == 0 {
		fc.Particles = def.Particles
	}
	if fc.InitNoise == (NoiseXYYaw{}) {
		fc.InitNoise = def.InitNoise
	}
	if fc.MotionNoise == 0 {
		fc.MotionNoise = def.MotionNoise
	}
	if fc.ReseedNoise == (NoiseXYYaw{}) {
		fc.ReseedNoise = def.ReseedNoise
	}
	if fc.ObservationSigma == 0 {
		fc.ObservationSigma = def.ObservationSigma
	}
	if fc.RangeBoundMultiplier == 0 {
		fc.RangeBoundMultiplier = def.RangeBoundMultiplier
	}
	if fc.SurvivorFraction == 0 {
		fc.SurvivorFraction = def.SurvivorFraction
	}
	if fc.WinnerFraction == 0 {
		fc.WinnerFraction = def.WinnerFraction
	}
	if fc.ReseedEvery == 0 {
		fc.ReseedEvery = def.ReseedEvery
	}
}

// Validate rejects tunings the filter cannot run with.
func (fc *FilterConfig) Validate() error {
	if fc.Particles < 2 {
		return fmt.Errorf("filter.particles must be at least 2, got %d", fc.Particles)
	}
	if fc.ObservationSigma <= 0 {
		return fmt.Errorf("filter.observationSigma must be positive, got %g", fc.ObservationSigma)
	}
	if fc.RangeBoundMultiplier <= 0 {
		return fmt.Errorf("filter.rangeBoundMultiplier must be positive, got %g", fc.RangeBoundMultiplier)
	}
	if fc.SurvivorFraction <= 0 || fc.SurvivorFraction >= 1 {
		return fmt.Errorf("filter.survivorFraction must be in (0,1), got %g", fc.SurvivorFraction)
	}
	if fc.WinnerFraction <= 0 || fc.WinnerFraction > fc.SurvivorFraction {
		return fmt.Errorf("filter.winnerFraction must be in (0, survivorFraction], got %g", fc.WinnerFraction)
	}
	if fc.ReseedEvery < 1 {
		return fmt.Errorf("filter.reseedEvery must be at least 1, got %d", fc.ReseedEvery)
	}
	return nil
}

// LoadConfig loads the unified configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.Filter.ApplyDefaults()
	if config.Tracker.MaxHypotheses == 0 {
		config.Tracker.MaxHypotheses = 4
	}
	if config.Sensor.Frame == "" {
		config.Sensor.Frame = "laser"
	}
	if err := config.Filter.Validate(); err != nil {
		return nil, err
	}
	if config.Map.Image != "" && config.Map.Resolution <= 0 {
		return nil, fmt.Errorf("map.resolution must be positive when map.image is set")
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
