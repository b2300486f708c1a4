package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models safeplate.yml.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`
	Services   []string `yaml:"services"`
	Thresholds struct {
		ReheatingMin   float64 `yaml:"reheating_min"`
		CoolingMax     float64 `yaml:"cooling_max"`
		OilPolarityMax float64 `yaml:"oil_polarity_max"`
	} `yaml:"thresholds"`
	Reception struct {
		MaxQuantity int `yaml:"max_quantity"`
	} `yaml:"reception"`
	Images struct {
		MaxBytes int64  `yaml:"max_bytes"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"images"`
	Landing string `yaml:"landing"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with sp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config.api.timeout must not be negative")
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("config.services must list at least one service")
	}
	seen := make(map[string]bool, len(c.Services))
	for _, s := range c.Services {
		if s == "" {
			return fmt.Errorf("config.services contains an empty service")
		}
		if seen[s] {
			return fmt.Errorf("config.services lists %s twice", s)
		}
		seen[s] = true
	}
	if c.Thresholds.CoolingMax >= c.Thresholds.ReheatingMin {
		return fmt.Errorf("thresholds.cooling_max (%.1f) must be below thresholds.reheating_min (%.1f)",
			c.Thresholds.CoolingMax, c.Thresholds.ReheatingMin)
	}
	if c.Thresholds.OilPolarityMax <= 0 || c.Thresholds.OilPolarityMax > 100 {
		return fmt.Errorf("thresholds.oil_polarity_max must be within (0,100]")
	}
	if c.Reception.MaxQuantity < 1 {
		return fmt.Errorf("reception.max_quantity must be at least 1")
	}
	if c.Images.MaxBytes < 0 {
		return fmt.Errorf("images.max_bytes must not be negative")
	}
	if c.Landing == "" {
		return fmt.Errorf("config.landing is required")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "safeplate.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(DefaultBaseURL), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// DefaultBaseURL is used when neither the config file nor the environment names an API.
const DefaultBaseURL = "http://127.0.0.1:8080/api"

// Default returns the default Config struct.
func Default(baseURL string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(baseURL))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default(DefaultBaseURL)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `api:
  base_url: %s
  timeout: 30s

services: [Matin, Midi, Soir]

thresholds:
  # reheated food must reach this core temperature (°C)
  reheating_min: 65
  # cooled food must end at or below this temperature (°C)
  cooling_max: 10
  # total polar compounds (%%) above which the oil must be changed
  oil_polarity_max: 25

reception:
  # largest quantity accepted for one delivered product
  max_quantity: 999

images:
  max_bytes: 10485760
  prefix: safeplate

landing: home
`
