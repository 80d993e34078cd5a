package irc

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/lrstanley/girc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/plugin"
)

func testChannel() *Channel {
	return New(config.IRCConfig{Server: "irc.test", Nick: "botkit", Channels: []string{"#test"}}, logging.New(nil, "silent"))
}

type line struct{ target, text string }

type fakeMessenger struct {
	mu    sync.Mutex
	lines []line
}

func (m *fakeMessenger) Message(target, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line{target, message})
}

type fakeDispatcher struct {
	acts    []*domain.Activity
	senders []domain.Sender
}

func (d *fakeDispatcher) Process(_ context.Context, sender domain.Sender, _ domain.Token, a *domain.Activity, _ map[string]any) *domain.Response {
	d.acts = append(d.acts, a)
	d.senders = append(d.senders, sender)
	return domain.NewResponse(200, nil)
}

func connected(c *Channel) *fakeMessenger {
	m := &fakeMessenger{}
	c.out = m
	return m
}

func TestPluginIdentity(t *testing.T) {
	c := testChannel()
	assert.Equal(t, "irc", c.Name())
	assert.NotEmpty(t, c.Version())

	var _ plugin.Sender = c
}

func TestInit_RequiresDispatcher(t *testing.T) {
	c := testChannel()
	assert.Error(t, c.Init(context.Background(), plugin.API{}))
	assert.NoError(t, c.Init(context.Background(), plugin.API{Dispatch: &fakeDispatcher{}}))
}

func TestStart_RequiresServerAndNick(t *testing.T) {
	c := New(config.IRCConfig{}, logging.New(nil, "silent"))
	assert.Error(t, c.Start(context.Background()))
}

func TestStatus_NotStarted(t *testing.T) {
	s := testChannel().Status()
	assert.False(t, s.Connected)
	assert.False(t, s.Running)
	assert.Empty(t, s.LastError)
}

func TestPortDefaults(t *testing.T) {
	assert.Equal(t, 6667, New(config.IRCConfig{}, logging.New(nil, "silent")).port())
	assert.Equal(t, 6697, New(config.IRCConfig{UseTLS: true}, logging.New(nil, "silent")).port())
	assert.Equal(t, 7000, New(config.IRCConfig{Port: 7000}, logging.New(nil, "silent")).port())
	assert.Equal(t, "ircs://irc.test:6697", New(config.IRCConfig{Server: "irc.test", UseTLS: true}, logging.New(nil, "silent")).serviceURL())
}

func TestActivityFrom_ChannelMessage(t *testing.T) {
	c := testChannel()
	e := girc.ParseEvent(":alice!a@host PRIVMSG #test :hello bot")
	require.NotNil(t, e)

	act := c.activityFrom("botkit", *e)
	require.NotNil(t, act)
	assert.Equal(t, domain.ActivityMessage, act.Type)
	assert.NotEmpty(t, act.ID)
	assert.Equal(t, "irc", act.ChannelID)
	assert.Equal(t, "irc://irc.test:6667", act.ServiceURL)
	assert.Equal(t, "alice", act.From.ID)
	assert.Equal(t, "botkit", act.Recipient.ID)
	assert.Equal(t, "#test", act.Conversation.ID)
	assert.True(t, act.Conversation.IsGroup)
	assert.Equal(t, "hello bot", act.Text)
}

func TestActivityFrom_DirectMessage(t *testing.T) {
	c := testChannel()
	e := girc.ParseEvent(":alice!a@host PRIVMSG botkit :psst")
	require.NotNil(t, e)

	act := c.activityFrom("botkit", *e)
	require.NotNil(t, act)
	assert.Equal(t, "alice", act.Conversation.ID)
	assert.False(t, act.Conversation.IsGroup)
	assert.Equal(t, "personal", act.Conversation.ConversationType)
}

func TestActivityFrom_Action(t *testing.T) {
	c := testChannel()
	e := girc.ParseEvent(":alice!a@host PRIVMSG #test :\x01ACTION waves\x01")
	require.NotNil(t, e)

	act := c.activityFrom("botkit", *e)
	require.NotNil(t, act)
	assert.Equal(t, "waves", act.Text)
}

func TestActivityFrom_IgnoresSelf(t *testing.T) {
	c := testChannel()
	e := girc.ParseEvent(":BotKit!b@host PRIVMSG #test :echo")
	require.NotNil(t, e)
	assert.Nil(t, c.activityFrom("botkit", *e))
}

func TestDeliver_DispatchesWithChannelAsSender(t *testing.T) {
	c := testChannel()
	d := &fakeDispatcher{}
	require.NoError(t, c.Init(context.Background(), plugin.API{Dispatch: d}))

	e := girc.ParseEvent(":alice!a@host PRIVMSG #test :hi")
	require.NotNil(t, e)
	c.deliver(context.Background(), c.activityFrom("botkit", *e))

	require.Len(t, d.acts, 1)
	assert.Equal(t, "hi", d.acts[0].Text)
	assert.Same(t, c, d.senders[0])
}

func TestSend_NotConnected(t *testing.T) {
	c := testChannel()
	_, err := c.Send(context.Background(), domain.NewMessage("hi"), domain.ConversationReference{}, false)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSend_NoTarget(t *testing.T) {
	c := testChannel()
	connected(c)
	_, err := c.Send(context.Background(), domain.NewMessage("hi"), domain.ConversationReference{}, false)
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestSend_RelaysMessageLines(t *testing.T) {
	c := testChannel()
	m := connected(c)
	ref := domain.ConversationReference{Conversation: domain.Conversation{ID: "#test"}}

	sent, err := c.Send(context.Background(), domain.NewMessage("one\ntwo"), ref, false)
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, "#test", sent.Conversation.ID)
	assert.Equal(t, []line{{"#test", "one"}, {"#test", "two"}}, m.lines)
}

func TestSend_KeepsExistingID(t *testing.T) {
	c := testChannel()
	connected(c)
	ref := domain.ConversationReference{Conversation: domain.Conversation{ID: "#test"}}

	sent, err := c.Send(context.Background(), domain.NewMessage("x").WithID("stream-1"), ref, false)
	require.NoError(t, err)
	assert.Equal(t, "stream-1", sent.ID)
}

func TestSend_AcknowledgesTypingAndChunks(t *testing.T) {
	c := testChannel()
	m := connected(c)
	ref := domain.ConversationReference{Conversation: domain.Conversation{ID: "#test"}}

	sent, err := c.Send(context.Background(), domain.NewTyping("thinking"), ref, false)
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)

	chunk := domain.NewTyping("partial").AddStreamUpdate(1)
	_, err = c.Send(context.Background(), chunk, ref, false)
	require.NoError(t, err)

	final := domain.NewMessage("done").AddStreamFinal()
	_, err = c.Send(context.Background(), final, ref, false)
	require.NoError(t, err)

	assert.Equal(t, []line{{"#test", "done"}}, m.lines)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"hello world"}, splitMessage("hello world", 400))
	assert.Equal(t, []string{"a", "b"}, splitMessage("a\n\n  \nb\r\n", 400))
	assert.Equal(t, []string{"abcdefghij", "klmnopqrst", "uvwxyz"}, splitMessage("abcdefghijklmnopqrstuvwxyz", 10))
	assert.Empty(t, splitMessage("", 400))
}

func TestSplitMessage_KeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 10) // 20 bytes
	for _, part := range splitMessage(text, 5) {
		assert.LessOrEqual(t, len(part), 5)
		assert.True(t, strings.HasPrefix(part, "é"))
		assert.Equal(t, 0, len(part)%2)
	}
}
