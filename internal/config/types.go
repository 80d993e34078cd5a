package config

import "time"

// Config is the root configuration for botkit.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Bot      BotConfig      `yaml:"bot,omitempty"`
	Stream   StreamConfig   `yaml:"stream,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP server that receives activities.
type GatewayConfig struct {
	Port           int            `yaml:"port,omitempty"`
	Bind           string         `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string         `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth    `yaml:"auth,omitempty"`
	TLS            GatewayTLS     `yaml:"tls,omitempty"`
	Devtools       DevtoolsConfig `yaml:"devtools,omitempty"`
}

// GatewayAuth configures inbound request authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "none"
	Secret   string `yaml:"secret,omitempty"`
	Audience string `yaml:"audience,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// DevtoolsConfig configures the event feed websocket.
type DevtoolsConfig struct {
	Enabled        bool     `yaml:"enabled,omitempty"`
	Token          string   `yaml:"token,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// BotConfig identifies the bot to the channel service.
type BotConfig struct {
	Name            string `yaml:"name,omitempty"`
	AppID           string `yaml:"appId,omitempty"`
	AppPassword     string `yaml:"appPassword,omitempty"`
	TenantID        string `yaml:"tenantId,omitempty"`
	ServiceURL      string `yaml:"serviceUrl,omitempty"`
	TokenServiceURL string `yaml:"tokenServiceUrl,omitempty"`
	OAuthConnection string `yaml:"oauthConnection,omitempty"`
}

// StreamConfig tunes the stream aggregator.
type StreamConfig struct {
	DebounceMs int `yaml:"debounceMs,omitempty"`
	BatchSize  int `yaml:"batchSize,omitempty"`
	// MaxRetries is a pointer so an explicit 0 disables retries.
	MaxRetries *int `yaml:"maxRetries,omitempty"`
}

// Debounce returns DebounceMs as a duration.
func (s StreamConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// Retries returns MaxRetries, or DefaultMaxRetries when unset.
func (s StreamConfig) Retries() int {
	if s.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *s.MaxRetries
}

// StorageConfig selects the app storage backend.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"` // "memory" | "sqlite"
	Path   string `yaml:"path,omitempty"`
}

// ChannelsConfig defines channel-specific configurations.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
