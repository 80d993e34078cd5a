// Package irc is a sender plugin that bridges IRC PRIVMSG traffic to
// message activities using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/plugin"
	"github.com/soyeahso/botkit/internal/version"
)

// Name is the plugin and channel id.
const Name = "irc"

// maxLineBytes keeps PRIVMSG lines under the 512 byte protocol limit once
// the prefix and target are added.
const maxLineBytes = 400

var (
	ErrNotConnected = errors.New("irc: not connected")
	ErrNoTarget     = errors.New("irc: conversation has no target")
)

// messenger is the part of girc.Commands used for outbound lines.
type messenger interface {
	Message(target, message string)
}

// Status is the runtime state of the connection.
type Status struct {
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel implements plugin.Sender for IRC.
type Channel struct {
	cfg config.IRCConfig
	log *logging.Logger

	dispatch plugin.Dispatcher

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	client  *girc.Client
	out     messenger
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
		ctx: context.Background(),
	}
}

// Name implements plugin.Plugin.
func (c *Channel) Name() string { return Name }

// Version implements plugin.Plugin.
func (c *Channel) Version() string { return version.Version }

// Init implements plugin.Plugin.
func (c *Channel) Init(_ context.Context, api plugin.API) error {
	if api.Dispatch == nil {
		return errors.New("irc: dispatcher is required")
	}
	c.dispatch = api.Dispatch
	return nil
}

func (c *Channel) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

func (c *Channel) serviceURL() string {
	scheme := "irc"
	if c.cfg.UseTLS {
		scheme = "ircs"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.cfg.Server, c.port())
}

func (c *Channel) newClient() *girc.Client {
	cfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "botkit",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		cfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		cfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		cfg.ServerPass = c.cfg.Password
	}

	client := girc.New(cfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)
	client.Handlers.AddBg(girc.PRIVMSG, c.onPrivmsg)
	return client
}

// Start connects in the background and reconnects with exponential backoff
// until Close is called.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.Server == "" || c.cfg.Nick == "" {
		return errors.New("irc: server and nick are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	client := c.newClient()

	c.mu.Lock()
	c.ctx, c.cancel = ctx, cancel
	c.client = client
	c.out = client.Cmd
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	go c.run(ctx, client)
	return nil
}

func (c *Channel) run(ctx context.Context, client *girc.Client) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	for {
		started := time.Now()
		err := client.Connect()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.setError(err)
			c.log.Warn().Err(err).Msg("irc connection ended")
		}
		if time.Since(started) > time.Minute {
			b.Reset()
		}

		wait := b.NextBackOff()
		c.log.Info().Dur("wait", wait).Msg("reconnecting to IRC")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (c *Channel) setError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// Close quits the server and stops reconnecting.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel, client := c.cancel, c.client
	c.cancel, c.out = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		if client.IsConnected() {
			c.log.Info().Msg("disconnecting from IRC")
			client.Quit("botkit shutting down")
		}
		client.Close()
	}
	return nil
}

// Status reports the connection state.
func (c *Channel) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		client.Cmd.Join(ch)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	act := c.activityFrom(client.GetNick(), e)
	if act == nil {
		return
	}
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	c.deliver(ctx, act)
}

// activityFrom converts a PRIVMSG into a message activity. It returns nil
// for our own messages and malformed events.
func (c *Channel) activityFrom(self string, e girc.Event) *domain.Activity {
	if e.Source == nil || len(e.Params) == 0 {
		return nil
	}
	if strings.EqualFold(e.Source.Name, self) {
		return nil
	}

	text := e.Last()
	if e.IsAction() {
		text = e.StripAction()
	}

	conv := domain.Conversation{ID: e.Source.Name, ConversationType: "personal"}
	if e.IsFromChannel() {
		conv = domain.Conversation{ID: e.Params[0], ConversationType: "channel", IsGroup: true, Name: e.Params[0]}
	}

	now := time.Now().UTC()
	return &domain.Activity{
		Type:         domain.ActivityMessage,
		ID:           uuid.NewString(),
		Timestamp:    &now,
		ChannelID:    Name,
		ServiceURL:   c.serviceURL(),
		From:         domain.Account{ID: e.Source.Name, Name: e.Source.Name, Role: "user"},
		Recipient:    domain.Account{ID: self, Name: self, Role: "bot"},
		Conversation: conv,
		Text:         text,
		TextFormat:   "plain",
	}
}

func (c *Channel) deliver(ctx context.Context, act *domain.Activity) {
	if c.dispatch == nil {
		return
	}
	resp := c.dispatch.Process(ctx, c, nil, act, map[string]any{"nick": act.From.Name})
	c.log.Debug().
		Str("from", act.From.Name).
		Str("conversation", act.Conversation.ID).
		Int("status", resp.Status).
		Msg("irc message dispatched")
}

// Send relays message text to the conversation target. Typing and
// in-progress stream chunks have no IRC equivalent and are acknowledged
// without being relayed.
func (c *Channel) Send(_ context.Context, a *domain.Activity, ref domain.ConversationReference, _ bool) (*domain.Activity, error) {
	c.mu.RLock()
	out := c.out
	c.mu.RUnlock()
	if out == nil {
		return nil, ErrNotConnected
	}

	target := ref.Conversation.ID
	if target == "" {
		return nil, ErrNoTarget
	}

	sent := a.Clone()
	if sent.ID == "" {
		sent.ID = uuid.NewString()
	}
	sent.Conversation = ref.Conversation
	sent.ChannelID = Name

	if a.Type != domain.ActivityMessage || a.IsStreaming() || a.Text == "" {
		c.log.Debug().Str("type", string(a.Type)).Str("to", target).Msg("activity not relayed")
		return sent, nil
	}

	lines := splitMessage(a.Text, maxLineBytes)
	for _, line := range lines {
		out.Message(target, line)
	}
	c.log.Debug().Str("to", target).Int("lines", len(lines)).Msg("sent IRC message")
	return sent, nil
}

// splitMessage breaks text into PRIVMSG-sized lines. Every newline starts a
// new line and blank lines are dropped. Lines longer than maxLen are cut
// without splitting a UTF-8 sequence.
func splitMessage(text string, maxLen int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
