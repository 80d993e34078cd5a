package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/soyeahso/botkit/internal/domain"
)

// CreateConversationParams describes a conversation to create.
type CreateConversationParams struct {
	IsGroup     bool             `json:"isGroup"`
	Bot         domain.Account   `json:"bot"`
	Members     []domain.Account `json:"members,omitempty"`
	TopicName   string           `json:"topicName,omitempty"`
	TenantID    string           `json:"tenantId,omitempty"`
	Activity    *domain.Activity `json:"activity,omitempty"`
	ChannelData any              `json:"channelData,omitempty"`
}

// ConversationResource is returned when a conversation is created.
type ConversationResource struct {
	ID         string `json:"id"`
	ActivityID string `json:"activityId,omitempty"`
	ServiceURL string `json:"serviceUrl,omitempty"`
}

type resource struct {
	ID string `json:"id"`
}

var errNoServiceURL = errors.New("api: conversation reference has no service url")

// Conversations talks to the connector at a conversation's service url.
type Conversations struct {
	c *Client
}

// NewConversations creates a connector client.
func NewConversations(c *Client) *Conversations {
	return &Conversations{c: c}
}

func base(serviceURL string) string {
	if strings.HasSuffix(serviceURL, "/") {
		return serviceURL
	}
	return serviceURL + "/"
}

// CreateConversation creates a conversation, typically a 1:1 chat with a
// user of a group conversation.
func (cs *Conversations) CreateConversation(ctx context.Context, serviceURL string, params CreateConversationParams) (*ConversationResource, error) {
	if serviceURL == "" {
		return nil, errNoServiceURL
	}
	var out ConversationResource
	if err := cs.c.do(ctx, http.MethodPost, base(serviceURL)+"v3/conversations", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func activitiesURL(ref domain.ConversationReference, id string, isTargeted bool) string {
	u := base(ref.ServiceURL) + "v3/conversations/" + url.PathEscape(ref.Conversation.ID) + "/activities"
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	if isTargeted {
		u += "?isTargetedActivity=true"
	}
	return u
}

// SendActivity delivers a to the referenced conversation. An activity that
// already has an id and is not a stream chunk updates the existing
// activity; everything else is created. The returned activity carries the
// id assigned by the channel.
func (cs *Conversations) SendActivity(ctx context.Context, ref domain.ConversationReference, a *domain.Activity, isTargeted bool) (*domain.Activity, error) {
	if ref.ServiceURL == "" {
		return nil, errNoServiceURL
	}

	out := a.Clone()
	out.From = ref.Bot
	out.Conversation = ref.Conversation
	out.ChannelID = ref.ChannelID
	out.ServiceURL = ref.ServiceURL
	if out.Recipient.ID == "" {
		out.Recipient = ref.User
	}
	if out.Locale == "" {
		out.Locale = ref.Locale
	}

	method, u := http.MethodPost, activitiesURL(ref, "", isTargeted)
	if out.ID != "" && !out.IsStreaming() {
		method, u = http.MethodPut, activitiesURL(ref, out.ID, isTargeted)
	}

	var res resource
	if err := cs.c.do(ctx, method, u, out, &res); err != nil {
		return nil, err
	}
	if res.ID != "" {
		out.ID = res.ID
	}
	return out, nil
}

// Reply posts a as a threaded reply to replyToID.
func (cs *Conversations) Reply(ctx context.Context, ref domain.ConversationReference, replyToID string, a *domain.Activity) (*domain.Activity, error) {
	out := a.Clone()
	out.ReplyToID = replyToID
	out.From = ref.Bot
	out.Conversation = ref.Conversation

	var res resource
	if err := cs.c.do(ctx, http.MethodPost, activitiesURL(ref, replyToID, false), out, &res); err != nil {
		return nil, err
	}
	out.ID = res.ID
	return out, nil
}

// DeleteActivity removes a previously sent activity.
func (cs *Conversations) DeleteActivity(ctx context.Context, ref domain.ConversationReference, id string) error {
	return cs.c.do(ctx, http.MethodDelete, activitiesURL(ref, id, false), nil, nil)
}

// Send implements domain.Sender.
func (cs *Conversations) Send(ctx context.Context, a *domain.Activity, ref domain.ConversationReference, isTargeted bool) (*domain.Activity, error) {
	return cs.SendActivity(ctx, ref, a, isTargeted)
}
