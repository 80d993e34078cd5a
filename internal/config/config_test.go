package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "none", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "botkit", cfg.Bot.Name)
	assert.Equal(t, DefaultServiceURL, cfg.Bot.ServiceURL)
	assert.Equal(t, DefaultTokenServiceURL, cfg.Bot.TokenServiceURL)
	assert.Equal(t, "graph", cfg.Bot.OAuthConnection)
	assert.Equal(t, 500, cfg.Stream.DebounceMs)
	assert.Equal(t, 10, cfg.Stream.BatchSize)
	assert.Equal(t, 5, cfg.Stream.Retries())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)
	assert.Nil(t, cfg.Channels.IRC)
}

func TestStreamDebounce(t *testing.T) {
	assert.Equal(t, "250ms", StreamConfig{DebounceMs: 250}.Debounce().String())
}

func TestLoadZeroRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  maxRetries: 0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Stream.MaxRetries)
	assert.Equal(t, 0, cfg.Stream.Retries())
	assert.Equal(t, DefaultMaxRetries, StreamConfig{}.Retries())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  auth:
    mode: token
    secret: s3cret
  devtools:
    enabled: true
    allowedOrigins: ["http://localhost:5173"]
bot:
  appId: app-1
  appPassword: pw
  tenantId: tenant-1
  oauthConnection: github
stream:
  debounceMs: 200
  batchSize: 4
storage:
  driver: sqlite
  path: /tmp/bot.db
logging:
  level: debug
  consoleStyle: json
channels:
  irc:
    server: irc.libera.chat
    port: 6697
    nick: testbot
    channels:
      - "#general"
      - "#dev"
    useTLS: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "token", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "s3cret", cfg.Gateway.Auth.Secret)
	assert.True(t, cfg.Gateway.Devtools.Enabled)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Gateway.Devtools.AllowedOrigins)

	assert.Equal(t, "app-1", cfg.Bot.AppID)
	assert.Equal(t, "pw", cfg.Bot.AppPassword)
	assert.Equal(t, "tenant-1", cfg.Bot.TenantID)
	assert.Equal(t, "github", cfg.Bot.OAuthConnection)
	assert.Equal(t, DefaultServiceURL, cfg.Bot.ServiceURL, "unset fields keep defaults")

	assert.Equal(t, 200, cfg.Stream.DebounceMs)
	assert.Equal(t, 4, cfg.Stream.BatchSize)
	assert.Equal(t, 5, cfg.Stream.Retries())

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/bot.db", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	require.NotNil(t, cfg.Channels.IRC)
	assert.Equal(t, "irc.libera.chat", cfg.Channels.IRC.Server)
	assert.Equal(t, 6697, cfg.Channels.IRC.Port)
	assert.Equal(t, "testbot", cfg.Channels.IRC.Nick)
	assert.Equal(t, []string{"#general", "#dev"}, cfg.Channels.IRC.Channels)
	assert.True(t, cfg.Channels.IRC.UseTLS)
	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BOTKIT_GATEWAY_PORT", "12345")
	t.Setenv("BOTKIT_GATEWAY_BIND", "lan")
	t.Setenv("BOTKIT_APP_ID", "env-app")
	t.Setenv("BOTKIT_APP_PASSWORD", "env-pw")
	t.Setenv("BOTKIT_TENANT_ID", "env-tenant")
	t.Setenv("BOTKIT_LOG_LEVEL", "TRACE")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "env-app", cfg.Bot.AppID)
	assert.Equal(t, "env-pw", cfg.Bot.AppPassword)
	assert.Equal(t, "env-tenant", cfg.Bot.TenantID)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("TEST_BOT_PASSWORD", "from-env")
	t.Setenv("TEST_GATEWAY_SECRET", "hmac")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
gateway:
  auth:
    mode: token
    secret: ${TEST_GATEWAY_SECRET}
bot:
  appId: app
  appPassword: ${TEST_BOT_PASSWORD}
channels:
  irc:
    server: irc.example.com
    nick: bot
    password: ${TEST_UNSET_VARIABLE}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bot.AppPassword)
	assert.Equal(t, "hmac", cfg.Gateway.Auth.Secret)
	assert.Equal(t, "${TEST_UNSET_VARIABLE}", cfg.Channels.IRC.Password)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw := map[string]any{
		"stream": map[string]any{
			"batchSize": 3,
		},
	}
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"stream", "batchSize"})
	assert.True(t, ok)
	assert.Equal(t, 3, val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Stream.BatchSize)
}

func TestLoadRawMissingAndEmpty(t *testing.T) {
	raw, err := LoadRaw("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Empty(t, raw)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	raw, err = LoadRaw(path)
	require.NoError(t, err)
	assert.NotNil(t, raw)
}
