package cli

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/botkit/internal/app"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
)

var (
	signInCommand  = regexp.MustCompile(`(?i)^\s*/signin\b`)
	signOutCommand = regexp.MustCompile(`(?i)^\s*/signout\b`)
	streamCommand  = regexp.MustCompile(`(?i)^\s*/stream\b`)
)

// streamDelay paces the words of the /stream demo.
var streamDelay = 50 * time.Millisecond

// registerRoutes installs the built-in echo bot: /signin, /signout, /stream
// and echo for everything else.
func registerRoutes(bot *app.App, connection string) error {
	bot.Events().OnSignIn("cli", func(_ context.Context, e events.SignInEvent) error {
		if e.Activity != nil {
			log.Info().Str("user", e.Activity.From.ID).Msg("user signed in")
		}
		return nil
	})

	routes := []func() error{
		func() error { return bot.OnMessagePattern(signInCommand, signIn(connection)) },
		func() error { return bot.OnMessagePattern(signOutCommand, signOut(connection)) },
		func() error { return bot.OnMessagePattern(streamCommand, streamWords) },
		func() error { return bot.OnMessage(echo) },
		func() error { return bot.OnActivity(domain.ActivityConversationUpdate, welcome) },
	}
	for _, add := range routes {
		if err := add(); err != nil {
			return err
		}
	}
	return nil
}

func signIn(connection string) app.Handler {
	return func(c *app.Context) (any, error) {
		res, err := c.SignIn(app.OAuthOptions{ConnectionName: connection})
		if err != nil {
			return nil, err
		}
		if res.State == app.SignedIn {
			_, err = c.SendText("You are already signed in.")
		}
		return nil, err
	}
}

func signOut(connection string) app.Handler {
	return func(c *app.Context) (any, error) {
		if err := c.SignOut(connection); err != nil {
			return nil, err
		}
		_, err := c.SendText("You have been signed out.")
		return nil, err
	}
}

// streamWords streams the rest of the message back one word at a time.
func streamWords(c *app.Context) (any, error) {
	text := strings.TrimSpace(streamCommand.ReplaceAllString(c.Activity.Text, ""))
	if text == "" {
		text = "Nothing to stream."
	}
	if err := c.Stream.Update("Streaming..."); err != nil {
		return nil, err
	}
	for i, word := range strings.Fields(text) {
		if i > 0 {
			word = " " + word
		}
		if err := c.Stream.EmitText(word); err != nil {
			return nil, err
		}
		select {
		case <-c.Context().Done():
			return nil, c.Context().Err()
		case <-time.After(streamDelay):
		}
	}
	return nil, nil
}

func echo(c *app.Context) (any, error) {
	if strings.TrimSpace(c.Activity.Text) == "" {
		return nil, nil
	}
	_, err := c.SendText("You said: " + c.Activity.Text)
	return nil, err
}

func welcome(c *app.Context) (any, error) {
	_, err := c.SendText("Hello! Try /stream, /signin or just say something.")
	return nil, err
}
