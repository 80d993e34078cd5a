package app

import (
	"errors"
	"net/http"

	"github.com/soyeahso/botkit/internal/api"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
)

// Built-in sign-in invoke names.
const (
	InvokeTokenExchange = "signin/tokenExchange"
	InvokeVerifyState   = "signin/verifyState"
)

// onTokenExchange exchanges an SSO token for a user token. A failed exchange
// answers 412 so the client falls back to the OAuth card.
func (a *App) onTokenExchange(c *Context) (any, error) {
	var req domain.TokenExchangeInvokeRequest
	if err := c.Activity.DecodeValue(&req); err != nil {
		return domain.NewResponse(http.StatusBadRequest, nil), nil
	}
	if req.ConnectionName == "" {
		req.ConnectionName = c.ConnectionName
	}
	if a.tokens == nil {
		return domain.NewResponse(http.StatusPreconditionFailed, domain.TokenExchangeInvokeResponse{
			ID:             req.ID,
			ConnectionName: req.ConnectionName,
			FailureDetail:  ErrNotConfigured.Error(),
		}), nil
	}

	tok, err := a.tokens.ExchangeToken(c.ctx, api.TokenRequest{
		UserID:         c.Activity.From.ID,
		ChannelID:      c.Activity.ChannelID,
		ConnectionName: req.ConnectionName,
	}, api.ExchangeRequest{Token: req.Token})
	if err != nil {
		c.log.Warn().Err(err).Str("connection", req.ConnectionName).Msg("token exchange failed")
		return domain.NewResponse(http.StatusPreconditionFailed, domain.TokenExchangeInvokeResponse{
			ID:             req.ID,
			ConnectionName: req.ConnectionName,
			FailureDetail:  err.Error(),
		}), nil
	}

	return a.completeSignIn(c, tok)
}

// onVerifyState redeems the magic code a user was shown after signing in.
func (a *App) onVerifyState(c *Context) (any, error) {
	var req domain.VerifyStateInvokeRequest
	if err := c.Activity.DecodeValue(&req); err != nil || req.State == "" {
		return domain.NewResponse(http.StatusNotFound, nil), nil
	}
	if a.tokens == nil {
		return domain.NewResponse(http.StatusPreconditionFailed, nil), nil
	}

	tok, err := a.tokens.GetUserToken(c.ctx, api.TokenRequest{
		UserID:         c.Activity.From.ID,
		ChannelID:      c.Activity.ChannelID,
		ConnectionName: c.ConnectionName,
		Code:           req.State,
	})
	if err != nil {
		if !errors.Is(err, api.ErrTokenNotFound) {
			c.log.Warn().Err(err).Msg("verify state failed")
		}
		return domain.NewResponse(http.StatusPreconditionFailed, nil), nil
	}

	return a.completeSignIn(c, tok)
}

// completeSignIn records the token, emits the signin event and lets any
// user routes for the same invoke run.
func (a *App) completeSignIn(c *Context, tok *domain.TokenResponse) (any, error) {
	c.IsSignedIn = true
	c.UserToken = tok
	a.bus.Emit(c.ctx, c.source, events.TypeSignIn, events.SignInEvent{Activity: c.Activity, Token: tok})
	return c.Next()
}
