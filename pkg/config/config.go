// Package config provides configuration loading and management for dwiqc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Overlay rendering parameters
	Overlay struct {
		// Alpha is the opacity of atlas regions drawn over the background
		Alpha float64 `yaml:"alpha"`

		// Colormap names the ramp used to colour atlas labels
		Colormap string `yaml:"colormap"`

		// FigureWidth and FigureHeight are the figure size in inches
		FigureWidth  float64 `yaml:"figureWidth"`
		FigureHeight float64 `yaml:"figureHeight"`

		// DPI converts the figure size into pixels
		DPI int `yaml:"dpi"`

		// Cuts is the number of slices shown in each panel
		Cuts int `yaml:"cuts"`

		// LowPercentile and HighPercentile window the background intensities
		LowPercentile  float64 `yaml:"lowPercentile"`
		HighPercentile float64 `yaml:"highPercentile"`
	} `yaml:"overlay"`

	// B-value rounding parameters
	Bvals struct {
		// Base is the multiple every b-value is rounded to
		Base float64 `yaml:"base"`
	} `yaml:"bvals"`

	// Logging parameters
	Logging struct {
		// Level is one of trace, debug, info, warn, error, disabled
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Overlay.Alpha = 0.8
	cfg.Overlay.Colormap = "winter"
	cfg.Overlay.FigureWidth = 20
	cfg.Overlay.FigureHeight = 10
	cfg.Overlay.DPI = 100
	cfg.Overlay.Cuts = 7
	cfg.Overlay.LowPercentile = 0.02
	cfg.Overlay.HighPercentile = 0.98

	cfg.Bvals.Base = 1000

	cfg.Logging.Level = "info"

	return cfg
}

// Validate reports the first out-of-range setting
func (c *Config) Validate() error {
	if c.Overlay.Alpha < 0 || c.Overlay.Alpha > 1 {
		return fmt.Errorf("overlay.alpha must be within [0, 1], got %g", c.Overlay.Alpha)
	}
	if c.Overlay.FigureWidth <= 0 || c.Overlay.FigureHeight <= 0 {
		return fmt.Errorf("overlay figure size must be positive, got %gx%g",
			c.Overlay.FigureWidth, c.Overlay.FigureHeight)
	}
	if c.Overlay.DPI <= 0 {
		return fmt.Errorf("overlay.dpi must be positive, got %d", c.Overlay.DPI)
	}
	if c.Overlay.Cuts <= 0 {
		return fmt.Errorf("overlay.cuts must be positive, got %d", c.Overlay.Cuts)
	}
	if c.Overlay.LowPercentile < 0 || c.Overlay.HighPercentile > 1 ||
		c.Overlay.LowPercentile >= c.Overlay.HighPercentile {
		return fmt.Errorf("overlay percentiles must satisfy 0 <= low < high <= 1, got %g and %g",
			c.Overlay.LowPercentile, c.Overlay.HighPercentile)
	}
	if c.Bvals.Base <= 0 {
		return fmt.Errorf("bvals.base must be positive, got %g", c.Bvals.Base)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the path is empty, it returns the default configuration. A path that
// was given but cannot be read is an error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
