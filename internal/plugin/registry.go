package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/botkit/internal/logging"
)

// Registry manages plugin lifecycle.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string // insertion order for deterministic lifecycle
	log     *logging.Logger
}

// NewRegistry creates a plugin registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin to the registry without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.Name()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.Name())
	}

	r.plugins[p.Name()] = p
	r.order = append(r.order, p.Name())

	r.log.Info().
		Str("name", p.Name()).
		Str("version", p.Version()).
		Msg("plugin registered")

	return nil
}

func (r *Registry) ordered() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.order))
	for i, name := range r.order {
		out[i] = r.plugins[name]
	}
	return out
}

// InitAll initializes all registered plugins in registration order. Each
// plugin receives api with a logger scoped to its name.
func (r *Registry) InitAll(ctx context.Context, api API) error {
	for _, p := range r.ordered() {
		scoped := api
		scoped.Log = r.log.Sub(p.Name())

		r.log.Info().Str("name", p.Name()).Msg("initializing plugin")
		if err := p.Init(ctx, scoped); err != nil {
			return fmt.Errorf("init plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// StartAll starts all plugins in registration order and stops at the
// first failure.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, p := range r.ordered() {
		r.log.Info().Str("name", p.Name()).Msg("starting plugin")
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// CloseAll shuts down all plugins in reverse registration order.
func (r *Registry) CloseAll() {
	plugins := r.ordered()
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		r.log.Info().Str("name", p.Name()).Msg("closing plugin")
		if err := p.Close(); err != nil {
			r.log.Error().Err(err).Str("name", p.Name()).Msg("plugin close error")
		}
	}
}

// Get returns a plugin by name, or nil if not found.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[name]
}

// List returns all registered plugin names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Senders returns the sender plugins in registration order.
func (r *Registry) Senders() []Sender {
	var out []Sender
	for _, p := range r.ordered() {
		if s, ok := p.(Sender); ok {
			out = append(out, s)
		}
	}
	return out
}

// Sender returns the sender plugin with the given name.
func (r *Registry) Sender(name string) (Sender, bool) {
	s, ok := r.Get(name).(Sender)
	return s, ok
}

// FirstSender returns the first registered sender plugin.
func (r *Registry) FirstSender() (Sender, bool) {
	senders := r.Senders()
	if len(senders) == 0 {
		return nil, false
	}
	return senders[0], true
}

// Observers returns the plugins implementing ActivityObserver.
func (r *Registry) Observers() []NamedObserver {
	var out []NamedObserver
	for _, p := range r.ordered() {
		if o, ok := p.(ActivityObserver); ok {
			out = append(out, NamedObserver{Name: p.Name(), Observer: o})
		}
	}
	return out
}

// NamedObserver pairs an observer with its plugin name for logging.
type NamedObserver struct {
	Name     string
	Observer ActivityObserver
}

// Info returns summary information about all registered plugins.
func (r *Registry) Info() []PluginInfo {
	plugins := r.ordered()
	infos := make([]PluginInfo, 0, len(plugins))
	for _, p := range plugins {
		_, sender := p.(Sender)
		infos = append(infos, PluginInfo{
			Name:    p.Name(),
			Version: p.Version(),
			Sender:  sender,
		})
	}
	return infos
}

// PluginInfo holds summary data about a plugin.
type PluginInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Sender  bool   `json:"sender"`
}
