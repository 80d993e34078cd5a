package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

func oneOf(issues []ValidationIssue, path, got string, valid []string) []ValidationIssue {
	if got != "" && !slices.Contains(valid, got) {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must be one of %v, got %q", valid, got),
		})
	}
	return issues
}

func nonNegative(issues []ValidationIssue, path string, v int) []ValidationIssue {
	if v < 0 {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must not be negative, got %d", v),
		})
	}
	return issues
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	issues = oneOf(issues, "gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	issues = oneOf(issues, "gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "none"})

	if cfg.Gateway.Auth.Mode == "token" && cfg.Gateway.Auth.Secret == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.secret",
			Message: "secret is required in token mode",
		})
	}
	if cfg.Gateway.Auth.Mode == "none" && cfg.Gateway.Bind != "" && cfg.Gateway.Bind != "loopback" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: "auth mode none is only allowed on a loopback bind",
		})
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	// Bot
	if cfg.Bot.AppID != "" && cfg.Bot.AppPassword == "" {
		issues = append(issues, ValidationIssue{
			Path:    "bot.appPassword",
			Message: "required when bot.appId is set",
		})
	}
	for _, f := range []struct{ path, raw string }{
		{"bot.serviceUrl", cfg.Bot.ServiceURL},
		{"bot.tokenServiceUrl", cfg.Bot.TokenServiceURL},
	} {
		path, raw := f.path, f.raw
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must be an absolute URL, got %q", raw),
			})
		}
	}

	// Stream
	issues = nonNegative(issues, "stream.debounceMs", cfg.Stream.DebounceMs)
	issues = nonNegative(issues, "stream.batchSize", cfg.Stream.BatchSize)
	issues = nonNegative(issues, "stream.maxRetries", cfg.Stream.Retries())

	// Storage
	issues = oneOf(issues, "storage.driver", cfg.Storage.Driver, []string{"memory", "sqlite"})

	// Logging
	issues = oneOf(issues, "logging.level", cfg.Logging.Level,
		[]string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	issues = oneOf(issues, "logging.consoleStyle", cfg.Logging.ConsoleStyle,
		[]string{"pretty", "compact", "json"})

	// IRC (only if configured)
	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.nick",
				Message: "nick is required",
			})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	return issues
}
