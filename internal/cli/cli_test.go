package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botkit/internal/app"
	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/routing"
)

type recorder struct {
	mu   sync.Mutex
	sent []*domain.Activity
}

func (r *recorder) Send(_ context.Context, a *domain.Activity, _ domain.ConversationReference, _ bool) (*domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := a.Clone()
	if out.ID == "" {
		out.ID = "sent"
	}
	r.sent = append(r.sent, out)
	return out, nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.sent {
		if a.Type == domain.ActivityMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

func newTestBot(t *testing.T) *app.App {
	t.Helper()
	log = logging.New(nil, "silent")
	streamDelay = 0

	bot, err := app.New(app.Options{
		Logger:     log,
		ServiceURL: "https://service.example/",
		Stream: routing.StreamConfig{
			Debounce:     5 * time.Millisecond,
			PollInterval: 5 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	require.NoError(t, registerRoutes(bot, "graph"))
	return bot
}

func inbound(typ domain.ActivityType, text string) *domain.Activity {
	return &domain.Activity{
		Type:         typ,
		ID:           "in-1",
		Text:         text,
		ChannelID:    "msteams",
		From:         domain.Account{ID: "user-1"},
		Recipient:    domain.Account{ID: "bot-1"},
		Conversation: domain.Conversation{ID: "conv-1"},
	}
}

func TestRoutes_Echo(t *testing.T) {
	bot := newTestBot(t)
	rec := &recorder{}

	resp := bot.Process(context.Background(), rec, nil, inbound(domain.ActivityMessage, "hello"), nil)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []string{"You said: hello"}, rec.texts())
}

func TestRoutes_Stream(t *testing.T) {
	bot := newTestBot(t)
	rec := &recorder{}

	resp := bot.Process(context.Background(), rec, nil, inbound(domain.ActivityMessage, "/stream one two three"), nil)
	assert.Equal(t, 200, resp.Status)

	texts := rec.texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "one two three", texts[len(texts)-1])
	assert.NotContains(t, texts, "You said: /stream one two three")
}

func TestRoutes_Welcome(t *testing.T) {
	bot := newTestBot(t)
	rec := &recorder{}

	bot.Process(context.Background(), rec, nil, inbound(domain.ActivityConversationUpdate, ""), nil)
	require.Len(t, rec.texts(), 1)
	assert.Contains(t, rec.texts()[0], "/stream")
}

func TestRoutes_SignInWithoutTokenService(t *testing.T) {
	bot := newTestBot(t)
	rec := &recorder{}

	resp := bot.Process(context.Background(), rec, nil, inbound(domain.ActivityMessage, "/signin"), nil)
	assert.Equal(t, 500, resp.Status)
	assert.Empty(t, rec.texts())
}

func TestStreamConfig(t *testing.T) {
	retries := 2
	sc := streamConfig(config.StreamConfig{DebounceMs: 250, BatchSize: 4, MaxRetries: &retries})
	assert.Equal(t, 250*time.Millisecond, sc.Debounce)
	assert.Equal(t, 4, sc.BatchSize)
	assert.Equal(t, 2, sc.Retry.MaxRetries)
	assert.Equal(t, routing.DefaultRetryConfig().InitialDelay, sc.Retry.InitialDelay)

	off := 0
	sc = streamConfig(config.StreamConfig{MaxRetries: &off})
	assert.Equal(t, 0, sc.Retry.MaxRetries)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"3978", 3978},
		{"0.5", 0.5},
		{"loopback", "loopback"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), tt.in)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("BOTKIT_HOME", t.TempDir())
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
}

func TestConfigValidateCmd(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("gateway:\n  port: 3978\n"), 0o600))
	out, err := runCLI(t, "--config", good, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("gateway:\n  port: 70000\n"), 0o600))
	out, err = runCLI(t, "--config", bad, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "gateway.port")
}

func TestConfigSetGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := runCLI(t, "--config", path, "config", "set", "bot.name", "echo")
	require.NoError(t, err)

	raw, err := config.LoadRaw(path)
	require.NoError(t, err)
	v, ok := config.GetValueAtPath(raw, []string{"bot", "name"})
	require.True(t, ok)
	assert.Equal(t, "echo", v)
}
