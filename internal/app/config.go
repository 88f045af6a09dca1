package app

import (
	"errors"
	"fmt"

	"github.com/vk/taskgrid/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// BuildfilePaths are Buildfiles or directories searched for *.hcl files.
	BuildfilePaths []string
	// Vars are `--var k=v` overrides of the Buildfile's vars.
	Vars map[string]string

	Mode    config.Mode
	Profile string
	CI      bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	Workers         int
	OTLPEndpoint    string

	// WorkDir overrides the base of relative paths in actions. By default it
	// is the directory of the first Buildfile.
	WorkDir string
	Version string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.BuildfilePaths) == 0 {
		return nil, errors.New("at least one Buildfile path is required")
	}

	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", cfg.LogFormat)
	}

	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", cfg.LogLevel)
	}

	mode, err := config.ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}

	return &cfg, nil
}

// RunSettings returns the settings every run of the app starts from.
func (c *Config) RunSettings() config.RunSettings {
	return config.RunSettings{Mode: c.Mode, Profile: c.Profile, CI: c.CI}
}
