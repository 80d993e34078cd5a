package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/soyeahso/botkit/internal/domain"
)

// ErrTokenNotFound is returned when the user has no token for a connection.
var ErrTokenNotFound = errors.New("api: user token not found")

// TokenRequest identifies a user's token for a connection.
type TokenRequest struct {
	UserID         string
	ConnectionName string
	ChannelID      string
	Code           string
}

func (r TokenRequest) query() string {
	q := url.Values{}
	q.Set("userId", r.UserID)
	q.Set("connectionName", r.ConnectionName)
	if r.ChannelID != "" {
		q.Set("channelId", r.ChannelID)
	}
	if r.Code != "" {
		q.Set("code", r.Code)
	}
	return q.Encode()
}

// ExchangeRequest is the body of a token exchange.
type ExchangeRequest struct {
	URI   string `json:"uri,omitempty"`
	Token string `json:"token,omitempty"`
}

// UserTokens talks to the user token service.
type UserTokens struct {
	c       *Client
	baseURL string
}

// NewUserTokens creates a token service client. An empty baseURL uses
// DefaultTokenServiceURL.
func NewUserTokens(c *Client, baseURL string) *UserTokens {
	if baseURL == "" {
		baseURL = DefaultTokenServiceURL
	}
	return &UserTokens{c: c, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func notFound(err error) error {
	if StatusCode(err) == http.StatusNotFound {
		return ErrTokenNotFound
	}
	return err
}

// GetUserToken returns the user's cached token for a connection.
func (t *UserTokens) GetUserToken(ctx context.Context, req TokenRequest) (*domain.TokenResponse, error) {
	var out domain.TokenResponse
	err := t.c.do(ctx, http.MethodGet, t.baseURL+"/api/usertoken/GetToken?"+req.query(), nil, &out)
	if err != nil {
		return nil, notFound(err)
	}
	if out.Token == "" {
		return nil, ErrTokenNotFound
	}
	return &out, nil
}

// SignOut revokes the user's token for a connection.
func (t *UserTokens) SignOut(ctx context.Context, req TokenRequest) error {
	return t.c.do(ctx, http.MethodDelete, t.baseURL+"/api/usertoken/SignOut?"+req.query(), nil, nil)
}

// ExchangeToken trades an SSO token for a connection token.
func (t *UserTokens) ExchangeToken(ctx context.Context, req TokenRequest, body ExchangeRequest) (*domain.TokenResponse, error) {
	var out domain.TokenResponse
	err := t.c.do(ctx, http.MethodPost, t.baseURL+"/api/usertoken/exchange?"+req.query(), body, &out)
	if err != nil {
		return nil, notFound(err)
	}
	if out.Token == "" {
		return nil, ErrTokenNotFound
	}
	return &out, nil
}
