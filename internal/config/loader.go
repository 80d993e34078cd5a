package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Bot.AppPassword = expandEnvVars(cfg.Bot.AppPassword)
	cfg.Gateway.Auth.Secret = expandEnvVars(cfg.Gateway.Auth.Secret)
	cfg.Gateway.Devtools.Token = expandEnvVars(cfg.Gateway.Devtools.Token)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "none"
	}
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = "botkit"
	}
	if cfg.Bot.ServiceURL == "" {
		cfg.Bot.ServiceURL = DefaultServiceURL
	}
	if cfg.Bot.TokenServiceURL == "" {
		cfg.Bot.TokenServiceURL = DefaultTokenServiceURL
	}
	if cfg.Bot.OAuthConnection == "" {
		cfg.Bot.OAuthConnection = "graph"
	}
	if cfg.Stream.DebounceMs == 0 {
		cfg.Stream.DebounceMs = 500
	}
	if cfg.Stream.BatchSize == 0 {
		cfg.Stream.BatchSize = 10
	}
	if cfg.Stream.MaxRetries == nil {
		n := DefaultMaxRetries
		cfg.Stream.MaxRetries = &n
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads BOTKIT_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOTKIT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("BOTKIT_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("BOTKIT_GATEWAY_SECRET"); v != "" {
		cfg.Gateway.Auth.Secret = v
	}
	if v := os.Getenv("BOTKIT_APP_ID"); v != "" {
		cfg.Bot.AppID = v
	}
	if v := os.Getenv("BOTKIT_APP_PASSWORD"); v != "" {
		cfg.Bot.AppPassword = v
	}
	if v := os.Getenv("BOTKIT_TENANT_ID"); v != "" {
		cfg.Bot.TenantID = v
	}
	if v := os.Getenv("BOTKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
