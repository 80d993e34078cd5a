package app

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/soyeahso/botkit/internal/api"
	"github.com/soyeahso/botkit/internal/domain"
)

// Sign-in defaults.
const (
	DefaultOAuthCardText    = "Please Sign In..."
	DefaultSignInButtonText = "Sign In"
)

// SignInState is the outcome of a sign-in attempt.
type SignInState string

const (
	// SignedIn means a token was already available.
	SignedIn SignInState = "signedIn"

	// PendingUserAction means a sign-in card was sent and the token will
	// arrive later through a signin invoke.
	PendingUserAction SignInState = "pendingUserAction"
)

// SignInResult is returned by SignIn and SignInSSO.
type SignInResult struct {
	State SignInState
	Token string
}

// OAuthOptions configures an OAuth card sign-in.
type OAuthOptions struct {
	ConnectionName   string
	OAuthCardText    string
	SignInButtonText string
}

func (o OAuthOptions) withDefaults(connection string) OAuthOptions {
	if o.ConnectionName == "" {
		o.ConnectionName = connection
	}
	if o.OAuthCardText == "" {
		o.OAuthCardText = DefaultOAuthCardText
	}
	if o.SignInButtonText == "" {
		o.SignInButtonText = DefaultSignInButtonText
	}
	return o
}

// SSOOptions configures a single sign-on card.
type SSOOptions struct {
	ConnectionName   string
	OAuthCardText    string
	SignInButtonText string

	// SignInLink is the page that starts the sign-in flow.
	SignInLink string
	Scopes     []string
}

// SignIn returns the user's token when one is cached. Otherwise it sends an
// OAuth card and returns PendingUserAction. In group conversations the card
// goes to a new 1:1 conversation, preceded by an informational message.
func (c *Context) SignIn(opts OAuthOptions) (SignInResult, error) {
	if c.app.tokens == nil || c.app.signIn == nil {
		return SignInResult{}, ErrNotConfigured
	}
	opts = opts.withDefaults(c.ConnectionName)

	if tok, ok := c.silentToken(opts.ConnectionName); ok {
		return SignInResult{State: SignedIn, Token: tok.Token}, nil
	}

	ref, err := c.signInReference(opts.OAuthCardText)
	if err != nil {
		return SignInResult{}, err
	}

	state, err := encodeState(domain.TokenExchangeState{
		ConnectionName: opts.ConnectionName,
		Conversation:   ref,
		RelatesTo:      c.Activity.RelatesTo,
		MsAppID:        c.AppID,
		CorrelationID:  uuid.NewString(),
	})
	if err != nil {
		return SignInResult{}, err
	}

	resource, err := c.app.signIn.GetSignInResource(c.ctx, state)
	if err != nil {
		return SignInResult{}, fmt.Errorf("getting sign-in resource: %w", err)
	}

	card := domain.OAuthCard{
		Text:                  opts.OAuthCardText,
		ConnectionName:        opts.ConnectionName,
		TokenExchangeResource: resource.TokenExchangeResource,
		TokenPostResource:     resource.TokenPostResource,
		Buttons: []domain.CardAction{{
			Type:  domain.ActionSignIn,
			Title: opts.SignInButtonText,
			Value: resource.SignInLink,
		}},
	}
	if _, err := c.sendTo(c.signInCard(ref, card), ref, false); err != nil {
		return SignInResult{}, err
	}
	return SignInResult{State: PendingUserAction}, nil
}

// SignInSSO is SignIn for single sign-on: the card carries a token exchange
// resource and a link built from opts.SignInLink and the requested scopes.
func (c *Context) SignInSSO(opts SSOOptions) (SignInResult, error) {
	if c.app.tokens == nil {
		return SignInResult{}, ErrNotConfigured
	}
	if opts.SignInLink == "" {
		return SignInResult{}, errors.New("app: sso sign-in link is required")
	}
	base := OAuthOptions{
		ConnectionName:   opts.ConnectionName,
		OAuthCardText:    opts.OAuthCardText,
		SignInButtonText: opts.SignInButtonText,
	}.withDefaults(c.ConnectionName)

	if tok, ok := c.silentToken(base.ConnectionName); ok {
		return SignInResult{State: SignedIn, Token: tok.Token}, nil
	}

	ref, err := c.signInReference(base.OAuthCardText)
	if err != nil {
		return SignInResult{}, err
	}

	link := fmt.Sprintf("%s?scope=%s&clientId=%s&tenantId=%s",
		opts.SignInLink,
		url.PathEscape(strings.Join(opts.Scopes, " ")),
		url.QueryEscape(c.AppID),
		url.QueryEscape(c.TenantID),
	)

	card := domain.OAuthCard{
		Text:                  base.OAuthCardText,
		ConnectionName:        base.ConnectionName,
		TokenExchangeResource: &domain.TokenExchangeResource{ID: uuid.NewString()},
		Buttons: []domain.CardAction{{
			Type:  domain.ActionSignIn,
			Title: base.SignInButtonText,
			Value: link,
		}},
	}
	if _, err := c.sendTo(c.signInCard(ref, card), ref, false); err != nil {
		return SignInResult{}, err
	}
	return SignInResult{State: PendingUserAction}, nil
}

// SignOut revokes the user's token for connectionName, or the default
// connection when empty.
func (c *Context) SignOut(connectionName string) error {
	if c.app.tokens == nil {
		return ErrNotConfigured
	}
	if connectionName == "" {
		connectionName = c.ConnectionName
	}
	err := c.app.tokens.SignOut(c.ctx, api.TokenRequest{
		UserID:         c.Activity.From.ID,
		ChannelID:      c.Ref.ChannelID,
		ConnectionName: connectionName,
	})
	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	c.IsSignedIn = false
	c.UserToken = nil
	return nil
}

func (c *Context) silentToken(connectionName string) (*domain.TokenResponse, bool) {
	tok, err := c.app.tokens.GetUserToken(c.ctx, api.TokenRequest{
		UserID:         c.Activity.From.ID,
		ChannelID:      c.Activity.ChannelID,
		ConnectionName: connectionName,
	})
	if err != nil {
		return nil, false
	}
	c.IsSignedIn = true
	c.UserToken = tok
	return tok, true
}

// signInReference returns where the sign-in card goes. Group conversations
// get a new 1:1 conversation with the user, announced with infoText.
func (c *Context) signInReference(infoText string) (domain.ConversationReference, error) {
	ref := c.Ref.Copy()
	if !c.Activity.Conversation.IsGroup {
		return ref, nil
	}
	if c.app.convs == nil {
		return ref, ErrNotConfigured
	}

	res, err := c.app.convs.CreateConversation(c.ctx, ref.ServiceURL, api.CreateConversationParams{
		TenantID: ref.Conversation.TenantID,
		IsGroup:  false,
		Bot:      ref.Bot,
		Members:  []domain.Account{c.Activity.From},
	})
	if err != nil {
		return ref, fmt.Errorf("creating 1:1 conversation: %w", err)
	}
	ref.Conversation.ID = res.ID
	ref.Conversation.IsGroup = false
	ref.Conversation.ConversationType = "personal"

	if _, err := c.sendTo(domain.NewMessage(infoText), ref, false); err != nil {
		return ref, err
	}
	return ref, nil
}

func (c *Context) signInCard(ref domain.ConversationReference, card domain.OAuthCard) *domain.Activity {
	act := domain.NewMessage("")
	act.InputHint = domain.InputHintAcceptingInput
	act.Recipient = c.Activity.From
	act.Conversation = ref.Conversation
	return act.AddAttachment(card.Attachment())
}

func encodeState(s domain.TokenExchangeState) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encoding sign-in state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeState parses a state produced for a sign-in card.
func DecodeState(state string) (domain.TokenExchangeState, error) {
	var s domain.TokenExchangeState
	raw, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		return s, fmt.Errorf("decoding sign-in state: %w", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("decoding sign-in state: %w", err)
	}
	return s, nil
}
