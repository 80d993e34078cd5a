package domain

import (
	"fmt"
	"strings"
)

// Account identifies a user or bot on a channel.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// Conversation identifies the conversation an activity belongs to.
type Conversation struct {
	ID               string `json:"id"`
	ConversationType string `json:"conversationType,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	Name             string `json:"name,omitempty"`
}

// ThreadID returns the conversation id without the ";messageid=" suffix that
// some channels append for threaded replies.
func (c Conversation) ThreadID() string {
	if i := strings.Index(c.ID, ";messageid="); i >= 0 {
		return c.ID[:i]
	}
	return c.ID
}

// Copy returns an independent copy of the conversation.
func (c Conversation) Copy() Conversation {
	return c
}

// ConversationReference addresses a conversation for outbound sends.
type ConversationReference struct {
	ActivityID   string       `json:"activityId,omitempty"`
	Bot          Account      `json:"bot"`
	User         Account      `json:"user"`
	Conversation Conversation `json:"conversation"`
	ChannelID    string       `json:"channelId"`
	ServiceURL   string       `json:"serviceUrl"`
	Locale       string       `json:"locale,omitempty"`
}

// Copy returns a deep copy so that a side conversation never shares state
// with the reference it was derived from.
func (r ConversationReference) Copy() ConversationReference {
	c := r
	c.Conversation = r.Conversation.Copy()
	return c
}

// ReferenceFrom derives the reply reference for an inbound activity. The bot
// is the recipient of the inbound activity and the user its sender.
func ReferenceFrom(a *Activity, fallbackServiceURL string) ConversationReference {
	serviceURL := a.ServiceURL
	if serviceURL == "" {
		serviceURL = fallbackServiceURL
	}
	return ConversationReference{
		ActivityID:   a.ID,
		Bot:          a.Recipient,
		User:         a.From,
		Conversation: a.Conversation.Copy(),
		ChannelID:    a.ChannelID,
		ServiceURL:   serviceURL,
		Locale:       a.Locale,
	}
}

const quotePreviewLimit = 120

// ToQuoteReply renders a quoted excerpt of a suitable for prefixing a reply.
func (a *Activity) ToQuoteReply() string {
	preview := []rune(a.Text)
	text := a.Text
	if len(preview) > quotePreviewLimit {
		text = string(preview[:quotePreviewLimit]) + "..."
	}
	return fmt.Sprintf(
		`<blockquote itemscope="" itemtype="http://schema.skype.com/Reply" itemid="%s">`+
			`<strong itemprop="mri" itemid="%s">%s</strong>`+
			`<span itemprop="time" itemid="%s"></span>`+
			`<p itemprop="preview">%s</p></blockquote>`,
		a.ID, a.From.ID, a.From.Name, a.ID, text,
	)
}
