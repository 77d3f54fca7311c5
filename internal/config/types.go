package config

import "time"

// Config represents the complete service configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Conversion ConversionConfig `yaml:"conversion"`
	Validation ValidationConfig `yaml:"validation"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. An empty key disables
// authentication.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// StorageConfig defines artifact storage settings.
type StorageConfig struct {
	Dir           string        `yaml:"dir"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	EventsBuffer  int           `yaml:"events_buffer"`
}

// ConversionConfig defines the external geometry converter invocation.
type ConversionConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	TempDir string   `yaml:"temp_dir"`
}

// ValidationConfig selects and configures the validation backend.
type ValidationConfig struct {
	// Backend is "engine" or "ifctester".
	Backend string        `yaml:"backend"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	TempDir string        `yaml:"temp_dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "openingbim",
			LogLevel: "info",
		},
		API: APIConfig{
			Listen: "127.0.0.1:3001",
		},
		Storage: StorageConfig{
			Dir:           "./data/artifacts",
			Retention:     time.Hour,
			SweepInterval: 5 * time.Minute,
			EventsBuffer:  100,
		},
		Validation: ValidationConfig{
			Backend: "ifctester",
			Command: "python3",
			Timeout: 5 * time.Minute,
		},
	}
}
