// Package plugin provides the plugin interfaces and lifecycle management
// for botkit.
package plugin

import (
	"context"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
	"github.com/soyeahso/botkit/internal/logging"
)

// Plugin is the interface that all botkit plugins must implement.
type Plugin interface {
	// Name returns a unique name for the plugin (e.g., "http").
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init wires the plugin to the app. Plugins subscribe to events here.
	Init(ctx context.Context, api API) error

	// Start begins serving. It must not block; long-running work belongs
	// in goroutines bounded by ctx.
	Start(ctx context.Context) error

	// Close shuts down the plugin and releases resources.
	Close() error
}

// Sender is a plugin that can deliver activities to a channel. Inbound
// traffic received by a sender is dispatched with that sender so replies
// go back the same way.
type Sender interface {
	Plugin
	domain.Sender
}

// ActivityObserver is implemented by plugins that want to see every
// inbound activity before it is routed.
type ActivityObserver interface {
	OnActivity(ctx context.Context, e events.ActivityEvent) error
}

// Dispatcher runs an inbound activity through the app.
type Dispatcher interface {
	Process(ctx context.Context, sender domain.Sender, token domain.Token, activity *domain.Activity, extra map[string]any) *domain.Response
}

// API is what the app exposes to plugins.
type API struct {
	Events   *events.Bus
	Log      *logging.Logger
	Dispatch Dispatcher

	// Status reports the app lifecycle state.
	Status func() string
}
