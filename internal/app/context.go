package app

import (
	"context"
	"fmt"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/routing"
	"github.com/soyeahso/botkit/internal/store"
)

// Context is what route handlers receive. It is scoped to one inbound
// activity and must not be retained after the handler returns.
type Context struct {
	ctx    context.Context
	app    *App
	sender domain.Sender
	source string
	log    *logging.Logger
	next   func() (any, error)

	Activity *domain.Activity
	Ref      domain.ConversationReference
	Stream   *routing.Stream
	Storage  store.Storage
	Extra    map[string]any

	AppID          string
	TenantID       string
	ConnectionName string

	IsSignedIn bool
	UserToken  *domain.TokenResponse
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context { return c.ctx }

// Log returns the request logger, tagged with the activity path.
func (c *Context) Log() *logging.Logger { return c.log }

// Next runs the next matching route and returns its result. Past the last
// route it returns the most recent non-nil result.
func (c *Context) Next() (any, error) {
	return c.next()
}

// Send delivers an activity to the conversation.
func (c *Context) Send(act *domain.Activity) (*domain.Activity, error) {
	return c.sendTo(act, c.Ref, false)
}

// SendTargeted delivers an activity privately to its recipient.
func (c *Context) SendTargeted(act *domain.Activity) (*domain.Activity, error) {
	return c.sendTo(act, c.Ref, true)
}

// SendText sends a text message.
func (c *Context) SendText(text string) (*domain.Activity, error) {
	return c.Send(domain.NewMessage(text))
}

// SendCard sends a message carrying one card attachment.
func (c *Context) SendCard(att domain.Attachment) (*domain.Activity, error) {
	return c.Send(domain.NewMessage("").AddAttachment(att))
}

// Reply sends act to the thread of the inbound activity. Message text is
// prefixed with a quote of the inbound message.
func (c *Context) Reply(act *domain.Activity) (*domain.Activity, error) {
	return c.reply(act, false)
}

// ReplyTargeted replies privately to the recipient of act.
func (c *Context) ReplyTargeted(act *domain.Activity) (*domain.Activity, error) {
	return c.reply(act, true)
}

func (c *Context) reply(act *domain.Activity, targeted bool) (*domain.Activity, error) {
	ref := c.Ref.Copy()
	ref.Conversation.ID = c.Ref.Conversation.ThreadID()

	out := act.Clone()
	out.Conversation = ref.Conversation
	out.ReplyToID = c.Activity.ID
	if out.Type == domain.ActivityMessage {
		text := ""
		if out.Text != "" {
			text = "<p>" + out.Text + "</p>"
		}
		out.Text = c.Activity.ToQuoteReply() + "\n" + text
	}
	return c.sendTo(out, ref, targeted)
}

// ReplyText replies with a text message.
func (c *Context) ReplyText(text string) (*domain.Activity, error) {
	return c.Reply(domain.NewMessage(text))
}

// Typing sends a typing indicator with optional text.
func (c *Context) Typing(text string) (*domain.Activity, error) {
	return c.Send(domain.NewTyping(text))
}

func (c *Context) sendTo(act *domain.Activity, ref domain.ConversationReference, targeted bool) (*domain.Activity, error) {
	res, err := c.sender.Send(c.ctx, act, ref, targeted)
	if err != nil {
		return nil, fmt.Errorf("sending %s: %w", act.Type, err)
	}
	c.app.emitSent(c.ctx, c.source, res, ref)
	return res, nil
}
