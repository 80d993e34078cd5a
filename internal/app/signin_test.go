package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
)

func signInApp(t *testing.T, tokens *mockTokens) (*App, *mockSender, *mockSignIn, *mockConversations) {
	t.Helper()
	si := &mockSignIn{}
	convs := &mockConversations{}
	a, s := newTestApp(t, Options{Tokens: tokens, SignIn: si, Conversations: convs})
	return a, s, si, convs
}

func TestSignInAlreadySignedIn(t *testing.T) {
	tokens := &mockTokens{token: &domain.TokenResponse{ConnectionName: "graph", Token: "tok"}}
	a, s, si, _ := signInApp(t, tokens)

	var result SignInResult
	var signedIn bool
	require.NoError(t, a.OnMessage(func(c *Context) (any, error) {
		signedIn = c.IsSignedIn
		var err error
		result, err = c.SignIn(OAuthOptions{})
		return nil, err
	}))

	a.Process(context.Background(), s, nil, inbound("login"), nil)
	assert.True(t, signedIn)
	assert.Equal(t, SignedIn, result.State)
	assert.Equal(t, "tok", result.Token)
	assert.Empty(t, s.all())
	assert.Empty(t, si.states)
	assert.Equal(t, "user-1", tokens.requests[0].UserID)
	assert.Equal(t, "graph", tokens.requests[0].ConnectionName)
}

func TestSignInPersonalSendsCard(t *testing.T) {
	a, s, si, convs := signInApp(t, &mockTokens{})

	var result SignInResult
	require.NoError(t, a.OnMessage(func(c *Context) (any, error) {
		var err error
		result, err = c.SignIn(OAuthOptions{ConnectionName: "github"})
		return nil, err
	}))

	a.Process(context.Background(), s, nil, inbound("login"), nil)
	assert.Equal(t, PendingUserAction, result.State)
	assert.Empty(t, convs.created)

	out := s.all()
	require.Len(t, out, 1)
	card := out[0].Activity
	assert.Equal(t, domain.InputHintAcceptingInput, card.InputHint)
	assert.Equal(t, "user-1", card.Recipient.ID)
	require.Len(t, card.Attachments, 1)
	assert.Equal(t, domain.ContentTypeOAuthCard, card.Attachments[0].ContentType)

	var oc domain.OAuthCard
	require.NoError(t, domain.DecodeAttachment(card.Attachments[0], &oc))
	assert.Equal(t, DefaultOAuthCardText, oc.Text)
	assert.Equal(t, "github", oc.ConnectionName)
	require.Len(t, oc.Buttons, 1)
	assert.Equal(t, domain.ActionSignIn, oc.Buttons[0].Type)
	assert.Equal(t, DefaultSignInButtonText, oc.Buttons[0].Title)
	assert.Equal(t, "https://signin.example/start", oc.Buttons[0].Value)

	require.Len(t, si.states, 1)
	state, err := DecodeState(si.states[0])
	require.NoError(t, err)
	assert.Equal(t, "github", state.ConnectionName)
	assert.Equal(t, "conv-1;messageid=99", state.Conversation.Conversation.ID)
	assert.NotEmpty(t, state.CorrelationID)
}

func TestSignInGroupUsesOneOnOne(t *testing.T) {
	a, s, si, convs := signInApp(t, &mockTokens{})

	require.NoError(t, a.OnMessage(func(c *Context) (any, error) {
		_, err := c.SignIn(OAuthOptions{OAuthCardText: "Sign in to continue"})
		return nil, err
	}))

	act := inbound("login")
	act.Conversation.IsGroup = true
	a.Process(context.Background(), s, nil, act, nil)

	require.Len(t, convs.created, 1)
	assert.False(t, convs.created[0].IsGroup)
	assert.Equal(t, "tenant-1", convs.created[0].TenantID)
	assert.Equal(t, "bot-1", convs.created[0].Bot.ID)
	require.Len(t, convs.created[0].Members, 1)
	assert.Equal(t, "user-1", convs.created[0].Members[0].ID)

	out := s.all()
	require.Len(t, out, 2)
	assert.Equal(t, "Sign in to continue", out[0].Activity.Text)
	assert.Empty(t, out[0].Activity.Attachments)
	assert.Equal(t, "1on1", out[0].Ref.Conversation.ID)

	assert.Len(t, out[1].Activity.Attachments, 1)
	assert.Equal(t, "1on1", out[1].Ref.Conversation.ID)
	assert.False(t, out[1].Ref.Conversation.IsGroup)

	state, err := DecodeState(si.states[0])
	require.NoError(t, err)
	assert.Equal(t, "1on1", state.Conversation.Conversation.ID)
}

func TestSignInSSO(t *testing.T) {
	a, s, _, _ := signInApp(t, &mockTokens{})

	require.NoError(t, a.OnMessage(func(c *Context) (any, error) {
		c.AppID = "app-1"
		_, err := c.SignInSSO(SSOOptions{
			SignInLink: "https://app.example/auth",
			Scopes:     []string{"User.Read", "openid"},
		})
		return nil, err
	}))

	a.Process(context.Background(), s, nil, inbound("sso"), nil)
	out := s.all()
	require.Len(t, out, 1)

	var oc domain.OAuthCard
	require.NoError(t, domain.DecodeAttachment(out[0].Activity.Attachments[0], &oc))
	require.NotNil(t, oc.TokenExchangeResource)
	assert.NotEmpty(t, oc.TokenExchangeResource.ID)
	assert.Equal(t, "https://app.example/auth?scope=User.Read%20openid&clientId=app-1&tenantId=tenant-1", oc.Buttons[0].Value)
}

func TestSignInNotConfigured(t *testing.T) {
	a, s := newTestApp(t, Options{})
	var err error
	require.NoError(t, a.OnMessage(func(c *Context) (any, error) {
		_, err = c.SignIn(OAuthOptions{})
		return nil, nil
	}))
	a.Process(context.Background(), s, nil, inbound("login"), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSignOut(t *testing.T) {
	tokens := &mockTokens{token: &domain.TokenResponse{Token: "tok"}}
	a, s, _, _ := signInApp(t, tokens)

	var after bool
	require.NoError(t, a.OnMessage(func(c *Context) (any, error) {
		if err := c.SignOut(""); err != nil {
			return nil, err
		}
		after = c.IsSignedIn
		return nil, nil
	}))

	a.Process(context.Background(), s, nil, inbound("logout"), nil)
	assert.False(t, after)
	require.Len(t, tokens.signedOut, 1)
	assert.Equal(t, "graph", tokens.signedOut[0].ConnectionName)
	assert.Equal(t, "msteams", tokens.signedOut[0].ChannelID)
	assert.Equal(t, "user-1", tokens.signedOut[0].UserID)
}

func invokeActivity(name string, value any) *domain.Activity {
	a := domain.NewInvoke(name, value)
	a.ChannelID = "msteams"
	a.From = domain.Account{ID: "user-1"}
	a.Conversation = domain.Conversation{ID: "conv-1"}
	return a
}

func TestVerifyState(t *testing.T) {
	tokens := &mockTokens{token: &domain.TokenResponse{Token: "tok"}}
	a, s, _, _ := signInApp(t, tokens)

	var signIns []events.SignInEvent
	a.Events().OnSignIn("capture", func(_ context.Context, e events.SignInEvent) error {
		signIns = append(signIns, e)
		return nil
	})

	resp := a.Process(context.Background(), s, nil, invokeActivity(InvokeVerifyState, domain.VerifyStateInvokeRequest{State: "123456"}), nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, signIns, 1)
	assert.Equal(t, "tok", signIns[0].Token.Token)

	resp = a.Process(context.Background(), s, nil, invokeActivity(InvokeVerifyState, domain.VerifyStateInvokeRequest{State: "000000"}), nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.Status)

	resp = a.Process(context.Background(), s, nil, invokeActivity(InvokeVerifyState, nil), nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Len(t, signIns, 1)
}

func TestTokenExchange(t *testing.T) {
	tokens := &mockTokens{}
	a, s, _, _ := signInApp(t, tokens)

	var userRoute string
	require.NoError(t, a.OnInvoke(InvokeTokenExchange, func(c *Context) (any, error) {
		userRoute = c.UserToken.Token
		return nil, nil
	}))

	req := domain.TokenExchangeInvokeRequest{ID: "x-1", ConnectionName: "graph", Token: "sso"}
	resp := a.Process(context.Background(), s, nil, invokeActivity(InvokeTokenExchange, req), nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "exchanged-sso", userRoute)
	assert.Equal(t, 2, resp.Meta.Routes)

	tokens.exchangeErr = errors.New("consent required")
	resp = a.Process(context.Background(), s, nil, invokeActivity(InvokeTokenExchange, req), nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.Status)
	body, ok := resp.Body.(domain.TokenExchangeInvokeResponse)
	require.True(t, ok)
	assert.Equal(t, "x-1", body.ID)
	assert.Equal(t, "consent required", body.FailureDetail)
}
