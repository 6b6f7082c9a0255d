package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultForks is the worker pool size used when the config names none.
const DefaultForks = 5

// HistoryConfig controls the SQLite run-history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TelemetryConfig controls trace/metric export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Config holds the engine's settings. Forks and the strategy default bind
// once at startup, so workers never resize during a run; only the log level
// is reloaded when the config file changes.
type Config struct {
	Forks       int      `yaml:"forks"`
	Strategy    string   `yaml:"strategy"`
	LogLevel    string   `yaml:"log_level"`
	DataDir     string   `yaml:"data_dir"`
	ModulePaths []string `yaml:"module_paths"`

	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := os.Getenv("ARMADA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".armada")
	}
	return &Config{
		Forks:    DefaultForks,
		LogLevel: "info",
		DataDir:  dataDir,
		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Load reads the config file at path. An empty path tries
// $ARMADA_HOME/config.yaml and falls back to defaults when the file does
// not exist; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Forks == 0 {
		c.Forks = DefaultForks
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = Default().DataDir
	}
	if c.History.Enabled && c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "armada"
	}
}

func (c *Config) validate() error {
	if c.Forks < 1 {
		return fmt.Errorf("forks must be at least 1, got %d", c.Forks)
	}
	return nil
}
