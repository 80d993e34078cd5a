// Package app wires routes, plugins and the event bus into the activity
// dispatcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/soyeahso/botkit/internal/api"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/metrics"
	"github.com/soyeahso/botkit/internal/plugin"
	"github.com/soyeahso/botkit/internal/routing"
	"github.com/soyeahso/botkit/internal/store"
)

// DefaultConnectionName is the OAuth connection used when none is given.
const DefaultConnectionName = "graph"

var (
	// ErrNotStarted is returned by proactive sends before Start succeeds.
	ErrNotStarted = errors.New("app: not started")

	// ErrSenderNotFound is returned when no sender plugin can deliver.
	ErrSenderNotFound = errors.New("app: no sender plugin found")

	// ErrNotConfigured is returned by sign-in helpers when the token
	// service clients are missing.
	ErrNotConfigured = errors.New("app: token service not configured")
)

// Status is the app lifecycle state.
type Status string

const (
	StatusReady   Status = "ready"
	StatusStarted Status = "started"
	StatusStopped Status = "stopped"
)

// Handler handles a routed activity. A non-nil result becomes the response
// body; returning a *domain.Response controls the status as well.
type Handler func(c *Context) (any, error)

// TokenClient reads and revokes user tokens.
type TokenClient interface {
	GetUserToken(ctx context.Context, req api.TokenRequest) (*domain.TokenResponse, error)
	SignOut(ctx context.Context, req api.TokenRequest) error
	ExchangeToken(ctx context.Context, req api.TokenRequest, body api.ExchangeRequest) (*domain.TokenResponse, error)
}

// SignInClient resolves sign-in resources for OAuth cards.
type SignInClient interface {
	GetSignInResource(ctx context.Context, state string) (*domain.SignInResource, error)
}

// ConversationClient creates conversations.
type ConversationClient interface {
	CreateConversation(ctx context.Context, serviceURL string, params api.CreateConversationParams) (*api.ConversationResource, error)
}

// OAuthSettings configures user sign-in.
type OAuthSettings struct {
	DefaultConnectionName string
}

// Options configures an App. Only Logger is required.
type Options struct {
	Name          string
	Logger        *logging.Logger
	Storage       store.Storage
	Tokens        TokenClient
	SignIn        SignInClient
	Conversations ConversationClient
	Credentials   api.Credentials
	Plugins       []plugin.Plugin
	OAuth         OAuthSettings
	Stream        routing.StreamConfig
	Metrics       *metrics.Metrics

	// ServiceURL is used when neither the activity nor its token carries one.
	ServiceURL string
}

// App is the bot application state shared by every request.
type App struct {
	name        string
	log         *logging.Logger
	storage     store.Storage
	tokens      TokenClient
	signIn      SignInClient
	convs       ConversationClient
	credentials api.Credentials
	oauth       OAuthSettings
	streamCfg   routing.StreamConfig
	metrics     *metrics.Metrics
	serviceURL  string

	bus     *events.Bus
	router  *routing.Router[Handler]
	plugins *plugin.Registry

	mu        sync.RWMutex
	status    Status
	startedAt time.Time
}

// New creates an app and registers the built-in sign-in invoke routes and
// the plugins given in opts.
func New(opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New(nil, "info")
	}
	if opts.Storage == nil {
		opts.Storage = store.NewMemoryStorage()
	}
	if opts.OAuth.DefaultConnectionName == "" {
		opts.OAuth.DefaultConnectionName = DefaultConnectionName
	}
	if opts.Name == "" {
		opts.Name = "botkit"
	}
	if opts.Stream.Retry.OnRetry == nil {
		opts.Stream.Retry.OnRetry = opts.Metrics.RecordRetry
	}

	a := &App{
		name:        opts.Name,
		log:         log.Sub("app"),
		storage:     opts.Storage,
		tokens:      opts.Tokens,
		signIn:      opts.SignIn,
		convs:       opts.Conversations,
		credentials: opts.Credentials,
		oauth:       opts.OAuth,
		streamCfg:   opts.Stream,
		metrics:     opts.Metrics,
		serviceURL:  opts.ServiceURL,
		bus:         events.NewBus(log),
		router:      routing.NewRouter[Handler](),
		plugins:     plugin.NewRegistry(log),
		status:      StatusReady,
	}

	if err := a.OnInvoke(InvokeTokenExchange, a.onTokenExchange); err != nil {
		return nil, err
	}
	if err := a.OnInvoke(InvokeVerifyState, a.onVerifyState); err != nil {
		return nil, err
	}

	for _, p := range opts.Plugins {
		if err := a.Use(p); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// ID returns the bot's app id, or "" when running without credentials.
func (a *App) ID() string { return a.credentials.ClientID }

// Name returns the app name.
func (a *App) Name() string { return a.name }

// Events returns the app's event bus.
func (a *App) Events() *events.Bus { return a.bus }

// Plugins returns the plugin registry.
func (a *App) Plugins() *plugin.Registry { return a.plugins }

// Storage returns the app storage.
func (a *App) Storage() store.Storage { return a.storage }

// Status returns the lifecycle state.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Uptime returns the time since a successful Start, or zero.
func (a *App) Uptime() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.startedAt.IsZero() {
		return 0
	}
	return time.Since(a.startedAt)
}

func (a *App) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	if s == StatusStarted {
		a.startedAt = time.Now()
	}
	a.mu.Unlock()
}

// Use registers a plugin.
func (a *App) Use(p plugin.Plugin) error {
	return a.plugins.Register(p)
}

// Route registers a handler for activities accepted by match.
func (a *App) Route(name string, match routing.Matcher, h Handler) error {
	return a.router.Register(name, match, h)
}

// OnMessage handles every message activity.
func (a *App) OnMessage(h Handler) error {
	return a.Route("message", routing.MatchMessage(), h)
}

// OnMessagePattern handles message activities whose text matches re.
func (a *App) OnMessagePattern(re *regexp.Regexp, h Handler) error {
	return a.Route("message:"+re.String(), routing.MatchMessageText(re), h)
}

// OnActivity handles every activity of type t.
func (a *App) OnActivity(t domain.ActivityType, h Handler) error {
	return a.Route(string(t), routing.MatchType(t), h)
}

// OnEvent handles event activities with the given name.
func (a *App) OnEvent(name string, h Handler) error {
	return a.Route("event/"+name, routing.MatchEvent(name), h)
}

// OnInvoke handles invoke activities with the given name.
func (a *App) OnInvoke(name string, h Handler) error {
	return a.Route("invoke/"+name, routing.MatchInvoke(name), h)
}

// Routes returns the registered route names in dispatch order.
func (a *App) Routes() []string {
	return a.router.Names()
}

// Start validates the bot credentials, then initializes and starts every
// plugin. A credential failure is logged and leaves the app stopped but
// serving, so health checks can report it; a plugin failure stops the app
// and is returned.
func (a *App) Start(ctx context.Context) error {
	degraded := false
	if !a.credentials.Empty() {
		if _, err := a.credentials.FetchToken(ctx); err != nil {
			degraded = true
			a.log.Error().Err(err).Msg("failed to get bot token on app startup")
			a.emitError(ctx, a.name, err, nil, nil)
		}
	}

	a.log.Debug().Str("id", a.ID()).Str("name", a.name).Msg("starting app")

	pluginAPI := plugin.API{
		Events:   a.bus,
		Log:      a.log,
		Dispatch: a,
		Status:   func() string { return string(a.Status()) },
	}
	if err := a.plugins.InitAll(ctx, pluginAPI); err != nil {
		return a.failStart(ctx, err)
	}
	if err := a.plugins.StartAll(ctx); err != nil {
		return a.failStart(ctx, err)
	}

	if degraded {
		a.setStatus(StatusStopped)
		return nil
	}

	a.setStatus(StatusStarted)
	a.log.Info().Int("routes", a.router.Len()).Int("plugins", a.plugins.Count()).Msg("app started")
	a.bus.Emit(ctx, a.name, events.TypeStart, events.StartEvent{AppID: a.ID(), AppName: a.name})
	return nil
}

func (a *App) failStart(ctx context.Context, err error) error {
	a.setStatus(StatusStopped)
	a.log.Error().Err(err).Msg("app failed to start")
	a.emitError(ctx, a.name, err, nil, nil)
	return err
}

// Stop closes plugins in reverse registration order.
func (a *App) Stop(context.Context) {
	a.plugins.CloseAll()
	a.setStatus(StatusStopped)
	a.log.Info().Msg("app stopped")
}

// SendOptions addresses a proactive send.
type SendOptions struct {
	ServiceURL       string
	ChannelID        string
	ConversationType string
	Targeted         bool
}

// Send delivers an activity to a conversation outside of a request, through
// the first registered sender plugin.
func (a *App) Send(ctx context.Context, conversationID string, act *domain.Activity, opts SendOptions) (*domain.Activity, error) {
	if a.ID() == "" || a.Status() != StatusStarted {
		return nil, ErrNotStarted
	}
	sender, ok := a.plugins.FirstSender()
	if !ok {
		return nil, ErrSenderNotFound
	}

	if opts.ServiceURL == "" {
		opts.ServiceURL = a.serviceURL
	}
	if opts.ChannelID == "" {
		opts.ChannelID = "msteams"
	}
	if opts.ConversationType == "" {
		opts.ConversationType = "personal"
	}

	ref := domain.ConversationReference{
		ChannelID:  opts.ChannelID,
		ServiceURL: opts.ServiceURL,
		Bot:        domain.Account{ID: a.ID(), Name: a.name, Role: "bot"},
		Conversation: domain.Conversation{
			ID:               conversationID,
			ConversationType: opts.ConversationType,
		},
	}

	res, err := sender.Send(ctx, act, ref, opts.Targeted)
	if err != nil {
		return nil, fmt.Errorf("sending to %s: %w", conversationID, err)
	}
	a.emitSent(ctx, sender.Name(), res, ref)
	return res, nil
}

func (a *App) emitSent(ctx context.Context, source string, act *domain.Activity, ref domain.ConversationReference) {
	a.bus.Emit(ctx, source, events.TypeActivitySent, events.ActivitySentEvent{Activity: act, Ref: ref, Sender: source})
}

func (a *App) emitError(ctx context.Context, source string, err error, act *domain.Activity, ref *domain.ConversationReference) {
	a.bus.Emit(ctx, source, events.TypeError, events.ErrorEvent{Err: err, Activity: act, Ref: ref})
}
