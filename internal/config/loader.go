package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and caught by validation.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = defaults.Storage.Dir
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = defaults.Storage.Retention
	}
	if cfg.Storage.SweepInterval == 0 {
		cfg.Storage.SweepInterval = defaults.Storage.SweepInterval
	}
	if cfg.Storage.EventsBuffer == 0 {
		cfg.Storage.EventsBuffer = defaults.Storage.EventsBuffer
	}
	if cfg.Validation.Backend == "" {
		cfg.Validation.Backend = defaults.Validation.Backend
	}
	if cfg.Validation.Command == "" {
		cfg.Validation.Command = defaults.Validation.Command
	}
	if cfg.Validation.Timeout == 0 {
		cfg.Validation.Timeout = defaults.Validation.Timeout
	}
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Storage.Retention <= 0 {
		return fmt.Errorf("storage.retention must be positive")
	}
	if cfg.Storage.SweepInterval <= 0 {
		return fmt.Errorf("storage.sweep_interval must be positive")
	}

	if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
		matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
		return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
	}

	switch cfg.Validation.Backend {
	case "engine":
	case "ifctester":
		if cfg.Validation.Command == "" {
			return fmt.Errorf("validation.command is required for the ifctester backend")
		}
	default:
		return fmt.Errorf("validation.backend must be engine or ifctester (got %q)", cfg.Validation.Backend)
	}

	return nil
}
