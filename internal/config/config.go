package config

import "fmt"

// Default values shared by Defaults and applyDefaults.
const (
	DefaultPort            = 3978
	DefaultServiceURL      = "https://smba.trafficmanager.net/teams/"
	DefaultTokenServiceURL = "https://token.botframework.com"
	DefaultMaxRetries      = 5
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}
