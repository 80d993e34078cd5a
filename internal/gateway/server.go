// Package gateway is the HTTP sender plugin. It receives activities on
// /api/messages, replies through the connector API and serves health,
// metrics and the devtools event feed.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/metrics"
	"github.com/soyeahso/botkit/internal/plugin"
	"github.com/soyeahso/botkit/internal/version"
)

// Name is the plugin and sender name.
const Name = "http"

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrNoSender     = errors.New("gateway: no outbound sender configured")
)

// Server is the gateway HTTP and websocket server.
type Server struct {
	cfg      config.GatewayConfig
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	outbound domain.Sender
	metrics  *metrics.Metrics
	appName  string
	eventSeq atomic.Int64

	// Set by Init.
	dispatch plugin.Dispatcher
	status   func() string
	plugins  func() []plugin.PluginInfo

	mu          sync.Mutex
	startedAt   time.Time
	httpServer  *http.Server
	listener    net.Listener
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithMetrics exposes m on /metrics and records request metrics.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAppName sets the name reported by health and devtools.
func WithAppName(name string) ServerOption {
	return func(s *Server) {
		s.appName = name
	}
}

// WithPlugins reports registered plugins on /health.
func WithPlugins(fn func() []plugin.PluginInfo) ServerOption {
	return func(s *Server) {
		s.plugins = fn
	}
}

// New creates the gateway. outbound delivers replies, normally an
// *api.Conversations.
func New(cfg config.GatewayConfig, outbound domain.Sender, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg),
		log:         log.Sub("gateway"),
		outbound:    outbound,
		appName:     "botkit",
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Devtools.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clients = NewClientRegistry(s.log.Sub("devtools"), s.metrics)
	return s
}

// Name implements plugin.Plugin.
func (s *Server) Name() string { return Name }

// Version implements plugin.Plugin.
func (s *Server) Version() string { return version.Version }

// Init wires the gateway to the app dispatcher and, when devtools are
// enabled, mirrors every built-in event to connected clients.
func (s *Server) Init(_ context.Context, api plugin.API) error {
	if api.Dispatch == nil {
		return errors.New("gateway: dispatcher is required")
	}
	s.dispatch = api.Dispatch
	s.status = api.Status
	if s.cfg.Devtools.Enabled && api.Events != nil {
		for _, t := range events.AllTypes {
			api.Events.On(t, "devtools", s.broadcast)
		}
	}
	return nil
}

// Start listens and serves in the background. Listen errors are returned.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled; bearer tokens will be transmitted in cleartext")
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("auth", s.auth.Mode).
		Bool("devtools", s.cfg.Devtools.Enabled).
		Msg("gateway server ready")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("gateway server stopped")
		}
	}()
	return nil
}

// Close shuts the server down, waiting up to ten seconds for requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	s.clients.CloseAll()
	if srv == nil {
		return nil
	}

	s.log.Info().Msg("shutting down gateway server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Send implements domain.Sender by delegating to the outbound client.
func (s *Server) Send(ctx context.Context, a *domain.Activity, ref domain.ConversationReference, isTargeted bool) (*domain.Activity, error) {
	if s.outbound == nil {
		return nil, ErrNoSender
	}
	return s.outbound.Send(ctx, a, ref, isTargeted)
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.metrics, s.cfg.Devtools.AllowedOrigins)
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// checkWebSocketOrigin allows non-browser clients and the configured
// origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// authRateLimiter tracks failed auth attempts per IP.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time)}
}

func remoteHost(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}

// recent drops failures outside the window. Callers hold l.mu.
func (l *authRateLimiter) recent(host string, now time.Time) []time.Time {
	cutoff := now.Add(-authRateWindow)
	times := l.failures[host]
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = filtered
	return filtered
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(remoteHost(remoteAddr), time.Now())) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, times := range l.failures {
			if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
				oldestIP, oldestTime = ip, times[0]
			}
		}
		delete(l.failures, oldestIP)
	}
	l.failures[host] = append(l.recent(host, now), now)
}
