package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/soyeahso/botkit/internal/domain"
)

// BotSignIn talks to the bot sign-in service.
type BotSignIn struct {
	c       *Client
	baseURL string
}

// NewBotSignIn creates a sign-in client. An empty baseURL uses
// DefaultTokenServiceURL.
func NewBotSignIn(c *Client, baseURL string) *BotSignIn {
	if baseURL == "" {
		baseURL = DefaultTokenServiceURL
	}
	return &BotSignIn{c: c, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// GetSignInResource returns the sign-in link and exchange resources for
// an encoded TokenExchangeState.
func (s *BotSignIn) GetSignInResource(ctx context.Context, state string) (*domain.SignInResource, error) {
	q := url.Values{}
	q.Set("state", state)

	var out domain.SignInResource
	if err := s.c.do(ctx, http.MethodGet, s.baseURL+"/api/botsignin/GetSignInResource?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
