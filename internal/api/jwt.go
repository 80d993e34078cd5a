package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the bot service claims carried by connector tokens.
type Claims struct {
	jwt.RegisteredClaims
	AppIDClaim     string `json:"appid,omitempty"`
	AuthorizedApp  string `json:"azp,omitempty"`
	AppDisplayName string `json:"app_displayname,omitempty"`
	TenantIDClaim  string `json:"tid,omitempty"`
	ServiceURL     string `json:"serviceurl,omitempty"`
}

// JWT is a parsed bearer token. It implements domain.Token.
type JWT struct {
	raw    string
	claims Claims
}

// ErrInvalidToken is returned when a bearer token fails validation.
var ErrInvalidToken = errors.New("api: invalid bearer token")

// ParseUnverified decodes a token without checking its signature. Use only
// for tokens already validated upstream or for display.
func ParseUnverified(raw string) (*JWT, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &JWT{raw: raw, claims: claims}, nil
}

// ParseHMAC validates an HS256 token against secret. When audience is not
// empty the aud claim must contain it.
func ParseHMAC(raw string, secret []byte, audience string) (*JWT, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &JWT{raw: raw, claims: claims}, nil
}

// SignHMAC issues an HS256 token for claims. Used by local emulators and
// tests.
func SignHMAC(claims Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Claims returns the decoded claims.
func (t *JWT) Claims() Claims { return t.claims }

// AppID returns the calling app id.
func (t *JWT) AppID() string {
	if t.claims.AppIDClaim != "" {
		return t.claims.AppIDClaim
	}
	return t.claims.AuthorizedApp
}

// AppDisplayName returns the calling app's display name.
func (t *JWT) AppDisplayName() string { return t.claims.AppDisplayName }

// TenantID returns the tenant the token was issued for.
func (t *JWT) TenantID() string { return t.claims.TenantIDClaim }

// ServiceURL returns the connector service url claim.
func (t *JWT) ServiceURL() string { return t.claims.ServiceURL }

// Expired reports whether the exp claim is in the past.
func (t *JWT) Expired() bool {
	if t.claims.ExpiresAt == nil {
		return false
	}
	return t.claims.ExpiresAt.Before(time.Now())
}

// String returns the raw token.
func (t *JWT) String() string { return t.raw }
