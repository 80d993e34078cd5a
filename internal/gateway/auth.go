package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/botkit/internal/api"
	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/domain"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "none"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode          string
	Secret        string
	Audience      string
	DevtoolsToken string
}

// ResolveAuth resolves authentication secrets from config and environment.
// Precedence: config value → env variable → empty.
func ResolveAuth(cfg config.GatewayConfig) ResolvedAuth {
	auth := ResolvedAuth{
		Mode:          cfg.Auth.Mode,
		Secret:        cfg.Auth.Secret,
		Audience:      cfg.Auth.Audience,
		DevtoolsToken: cfg.Devtools.Token,
	}
	if auth.Secret == "" {
		auth.Secret = os.Getenv("BOTKIT_GATEWAY_SECRET")
	}
	if auth.DevtoolsToken == "" {
		auth.DevtoolsToken = os.Getenv("BOTKIT_DEVTOOLS_TOKEN")
	}
	if auth.Mode == "" {
		auth.Mode = "token"
	}
	return auth
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate validates the bearer token of an inbound activity request.
// In token mode the JWT must be signed with the shared secret. In none mode
// a bearer token is optional and only read for its claims.
func Authenticate(auth ResolvedAuth, r *http.Request) (domain.Token, AuthResult) {
	raw := bearer(r)

	switch auth.Mode {
	case "token":
		if auth.Secret == "" {
			return nil, AuthResult{Reason: "server secret not configured"}
		}
		if raw == "" {
			return nil, AuthResult{Reason: "bearer token required"}
		}
		tok, err := api.ParseHMAC(raw, []byte(auth.Secret), auth.Audience)
		if err != nil {
			return nil, AuthResult{Reason: "invalid token"}
		}
		return tok, AuthResult{OK: true, Method: "token"}

	case "none":
		if raw == "" {
			return nil, AuthResult{OK: true, Method: "none"}
		}
		tok, err := api.ParseUnverified(raw)
		if err != nil {
			return nil, AuthResult{OK: true, Method: "none"}
		}
		return tok, AuthResult{OK: true, Method: "none"}

	default:
		return nil, AuthResult{Reason: "unknown auth mode: " + auth.Mode}
	}
}

// AuthorizeDevtools checks the token sent in a devtools connect request.
// An unset server token admits every client.
func AuthorizeDevtools(auth ResolvedAuth, client *ConnectAuth) AuthResult {
	if auth.DevtoolsToken == "" {
		return AuthResult{OK: true, Method: "none"}
	}
	if client == nil || client.Token == "" {
		return AuthResult{Reason: "token required"}
	}
	if !safeEqual(client.Token, auth.DevtoolsToken) {
		return AuthResult{Reason: "token_mismatch"}
	}
	return AuthResult{OK: true, Method: "token"}
}

// safeEqual performs a constant-time string comparison.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
