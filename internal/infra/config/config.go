// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Light      LightConfig      `yaml:"light"`
	Log        LogConfig        `yaml:"log"`
	Hooks      HooksConfig      `yaml:"hooks"`
}

// SimulationConfig represents simulation configuration.
type SimulationConfig struct {
	Lights           int    `yaml:"lights" default:"1" validate:"gte=1,lte=64"`
	VehiclesPerLight int    `yaml:"vehicles_per_light" default:"1" validate:"gte=1,lte=100"`
	CrossingTimeMs   int    `yaml:"crossing_time_ms" validate:"gte=0,lte=10000"` // 0 queues again immediately
	RunFor           string `yaml:"run_for"` // empty runs until interrupted
}

// LightConfig represents traffic light configuration.
type LightConfig struct {
	PollIntervalMs int    `yaml:"poll_interval_ms" default:"1" validate:"gte=1,lte=100"`
	Seed           uint64 `yaml:"seed"` // 0 seeds every light randomly
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("TRAFFICLIGHT_LIGHTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid TRAFFICLIGHT_LIGHTS")
		}
		c.Simulation.Lights = n
	}
	if v := os.Getenv("TRAFFICLIGHT_VEHICLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "invalid TRAFFICLIGHT_VEHICLES")
		}
		c.Simulation.VehiclesPerLight = n
	}
	if v := os.Getenv("TRAFFICLIGHT_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "invalid TRAFFICLIGHT_SEED")
		}
		c.Light.Seed = n
	}
	if v := os.Getenv("TRAFFICLIGHT_RUN_FOR"); v != "" {
		c.Simulation.RunFor = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if _, err := c.ParseRunFor(); err != nil {
		return err
	}

	return nil
}

// ParseRunFor parses the run duration.
// Returns 0 if the run duration is empty.
func (c *Config) ParseRunFor() (time.Duration, error) {
	if c.Simulation.RunFor == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Simulation.RunFor)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse run_for")
	}
	if d < 0 {
		return 0, errors.Newf("run_for (%s) must not be negative", c.Simulation.RunFor)
	}
	return d, nil
}

// CrossingTime returns the maximum pause after a vehicle crosses.
func (c *Config) CrossingTime() time.Duration {
	return time.Duration(c.Simulation.CrossingTimeMs) * time.Millisecond
}

// PollInterval returns the light polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Light.PollIntervalMs) * time.Millisecond
}
