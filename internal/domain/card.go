package domain

import "encoding/json"

// Attachment content types.
const (
	ContentTypeOAuthCard    = "application/vnd.microsoft.card.oauth"
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
)

// Attachment is a file or card attached to an activity.
type Attachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Content     any    `json:"content,omitempty"`
	Name        string `json:"name,omitempty"`
}

// CardAction is a button on a card.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
}

// ActionSignIn is the CardAction type that opens a sign-in link.
const ActionSignIn = "signin"

// TokenExchangeResource describes where an SSO token can be exchanged.
type TokenExchangeResource struct {
	ID         string `json:"id,omitempty"`
	URI        string `json:"uri,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// TokenPostResource is where a client may post a token directly.
type TokenPostResource struct {
	SASURL string `json:"sasUrl,omitempty"`
}

// SignInResource is returned by the sign-in service for a given state.
type SignInResource struct {
	SignInLink            string                 `json:"signInLink"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty"`
}

// OAuthCard prompts the user to sign in.
type OAuthCard struct {
	Text                  string                 `json:"text,omitempty"`
	ConnectionName        string                 `json:"connectionName,omitempty"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty"`
	Buttons               []CardAction           `json:"buttons,omitempty"`
}

// Attachment wraps the card for sending.
func (c OAuthCard) Attachment() Attachment {
	return Attachment{ContentType: ContentTypeOAuthCard, Content: c}
}

// TokenExchangeState is the opaque state round-tripped through the sign-in
// service. It is serialized as base64 JSON.
type TokenExchangeState struct {
	ConnectionName string                 `json:"connectionName"`
	Conversation   ConversationReference  `json:"conversation"`
	RelatesTo      *ConversationReference `json:"relatesTo,omitempty"`
	MsAppID        string                 `json:"msAppId,omitempty"`
	CorrelationID  string                 `json:"correlationId,omitempty"`
}

// TokenResponse is a user token issued for a connection.
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConnectionName string `json:"connectionName"`
	Token          string `json:"token"`
	Expiration     string `json:"expiration,omitempty"`
}

// TokenExchangeInvokeRequest is the value of a signin/tokenExchange invoke.
type TokenExchangeInvokeRequest struct {
	ID             string `json:"id"`
	ConnectionName string `json:"connectionName"`
	Token          string `json:"token"`
}

// VerifyStateInvokeRequest is the value of a signin/verifyState invoke.
type VerifyStateInvokeRequest struct {
	State string `json:"state"`
}

// TokenExchangeInvokeResponse answers a failed token exchange.
type TokenExchangeInvokeResponse struct {
	ID             string `json:"id"`
	ConnectionName string `json:"connectionName"`
	FailureDetail  string `json:"failureDetail,omitempty"`
}

// DecodeAttachment unmarshals att.Content into target.
func DecodeAttachment(att Attachment, target any) error {
	raw, err := json.Marshal(att.Content)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
