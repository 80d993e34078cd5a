package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// BotScope is the scope requested for connector calls.
const BotScope = "https://api.botframework.com/.default"

// Credentials are the bot's client credentials.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TenantID     string

	// TokenURL overrides the token endpoint derived from TenantID.
	TokenURL string
}

// ErrNoCredentials is returned when no client id is configured.
var ErrNoCredentials = errors.New("api: no bot credentials configured")

// Empty reports whether no client id is configured.
func (c Credentials) Empty() bool {
	return c.ClientID == ""
}

func (c Credentials) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	tenant := c.TenantID
	if tenant == "" {
		tenant = "botframework.com"
	}
	return "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0/token"
}

func (c Credentials) config() *clientcredentials.Config {
	return &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.tokenURL(),
		Scopes:       []string{BotScope},
	}
}

// TokenSource returns a caching source of bot tokens.
func (c Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	return c.config().TokenSource(ctx)
}

// HTTPClient returns an http.Client that attaches bot tokens. With no
// credentials it returns base unchanged (emulator mode).
func (c Credentials) HTTPClient(ctx context.Context, base *http.Client) *http.Client {
	if c.Empty() {
		if base == nil {
			return http.DefaultClient
		}
		return base
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}

// FetchToken acquires a bot token once. Used at startup to validate the
// credentials.
func (c Credentials) FetchToken(ctx context.Context) (*oauth2.Token, error) {
	if c.Empty() {
		return nil, ErrNoCredentials
	}
	tok, err := c.config().Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching bot token: %w", err)
	}
	return tok, nil
}
