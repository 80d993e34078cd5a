// Package events provides the typed event bus for app lifecycle events.
package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/logging"
)

// Type names an event. Built-in kinds are the constants below; plugins
// publish under Namespaced names.
type Type string

// Built-in event kinds.
const (
	TypeStart            Type = "start"
	TypeError            Type = "error"
	TypeSignIn           Type = "signin"
	TypeActivity         Type = "activity"
	TypeActivitySent     Type = "activity.sent"
	TypeActivityResponse Type = "activity.response"
)

// AllTypes lists the built-in event kinds.
var AllTypes = []Type{
	TypeStart,
	TypeError,
	TypeSignIn,
	TypeActivity,
	TypeActivitySent,
	TypeActivityResponse,
}

// Namespaced returns the event type "<plugin>.<name>".
func Namespaced(plugin, name string) Type {
	return Type(plugin + "." + name)
}

// BuiltIn reports whether t is one of the built-in kinds.
func (t Type) BuiltIn() bool {
	for _, b := range AllTypes {
		if b == t {
			return true
		}
	}
	return false
}

// Plugin returns the namespace of a plugin event, or "" for built-ins.
func (t Type) Plugin() string {
	if t.BuiltIn() {
		return ""
	}
	if i := strings.IndexByte(string(t), '.'); i > 0 {
		return string(t)[:i]
	}
	return ""
}

// Event is what handlers receive.
type Event struct {
	Type    Type
	Source  string
	Payload any
}

// StartEvent is emitted once the app has started.
type StartEvent struct {
	AppID   string
	AppName string
}

// ErrorEvent carries a failure together with the activity being handled,
// when there was one.
type ErrorEvent struct {
	Err      error
	Activity *domain.Activity
	Ref      *domain.ConversationReference
}

// SignInEvent is emitted when a user completes sign-in.
type SignInEvent struct {
	Activity *domain.Activity
	Token    *domain.TokenResponse
}

// ActivityEvent is emitted for every inbound activity before routing.
type ActivityEvent struct {
	Activity *domain.Activity
	Token    domain.Token
	Extra    map[string]any
}

// ActivitySentEvent is emitted after an outbound activity was delivered.
type ActivitySentEvent struct {
	Activity *domain.Activity
	Ref      domain.ConversationReference
	Sender   string
}

// ActivityResponseEvent is emitted with the final dispatch envelope.
type ActivityResponseEvent struct {
	Activity *domain.Activity
	Response *domain.Response
}

// Handler handles an event synchronously. A non-nil result becomes the
// Emit return value unless a later handler also returns one.
type Handler func(ctx context.Context, e Event) (any, error)

// AsyncHandler handles an event on its own goroutine.
type AsyncHandler func(ctx context.Context, e Event)

// Bus dispatches events to registered handlers. It is safe for concurrent
// use by many in-flight requests.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
	async   AsyncHandler
}

// NewBus creates an event bus.
func NewBus(log *logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]namedHandler),
		log:      log.Sub("events"),
	}
}

// On registers a synchronous handler. The name identifies it for Off and
// for logging.
func (b *Bus) On(t Type, name string, handler Handler) {
	b.add(t, namedHandler{name: name, handler: handler})
}

// OnAsync registers a fire-and-forget handler.
func (b *Bus) OnAsync(t Type, name string, handler AsyncHandler) {
	b.add(t, namedHandler{name: name, async: handler})
}

func (b *Bus) add(t Type, h namedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
	b.log.Debug().Str("event", string(t)).Str("handler", h.name).Msg("handler registered")
}

// Off removes all handlers with the given name from t.
func (b *Bus) Off(t Type, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[t]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	b.handlers[t] = filtered
}

// Emit dispatches to every handler of t. Synchronous handlers run in
// registration order; errors and panics are logged and do not stop later
// handlers. Returns the last non-nil synchronous result.
func (b *Bus) Emit(ctx context.Context, source string, t Type, payload any) any {
	b.mu.RLock()
	handlers := make([]namedHandler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	e := Event{Type: t, Source: source, Payload: payload}

	var result any
	for _, h := range handlers {
		if h.async != nil {
			go b.runAsync(ctx, h, e)
			continue
		}
		res, err := b.run(ctx, h, e)
		if err != nil {
			b.log.Warn().
				Err(err).
				Str("event", string(t)).
				Str("handler", h.name).
				Msg("event handler error")
			continue
		}
		if res != nil {
			result = res
		}
	}
	return result
}

func (b *Bus) run(ctx context.Context, h namedHandler, e Event) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.handler(ctx, e)
}

func (b *Bus) runAsync(ctx context.Context, h namedHandler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn().
				Str("event", string(e.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("async event handler panic")
		}
	}()
	h.async(ctx, e)
}

// Count returns the number of handlers registered for t.
func (b *Bus) Count(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

// Types returns the sorted event types with at least one handler.
func (b *Bus) Types() []Type {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]Type, 0, len(b.handlers))
	for t, handlers := range b.handlers {
		if len(handlers) > 0 {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func typed[P any](fn func(context.Context, P) error) Handler {
	return func(ctx context.Context, e Event) (any, error) {
		p, ok := e.Payload.(P)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for %s", e.Payload, e.Type)
		}
		return nil, fn(ctx, p)
	}
}

// OnStart subscribes to start events.
func (b *Bus) OnStart(name string, fn func(context.Context, StartEvent) error) {
	b.On(TypeStart, name, typed(fn))
}

// OnError subscribes to error events.
func (b *Bus) OnError(name string, fn func(context.Context, ErrorEvent) error) {
	b.On(TypeError, name, typed(fn))
}

// OnSignIn subscribes to sign-in completion events.
func (b *Bus) OnSignIn(name string, fn func(context.Context, SignInEvent) error) {
	b.On(TypeSignIn, name, typed(fn))
}

// OnActivity subscribes to inbound activity events.
func (b *Bus) OnActivity(name string, fn func(context.Context, ActivityEvent) error) {
	b.On(TypeActivity, name, typed(fn))
}

// OnActivitySent subscribes to outbound delivery events.
func (b *Bus) OnActivitySent(name string, fn func(context.Context, ActivitySentEvent) error) {
	b.On(TypeActivitySent, name, typed(fn))
}

// OnActivityResponse subscribes to dispatch envelope events.
func (b *Bus) OnActivityResponse(name string, fn func(context.Context, ActivityResponseEvent) error) {
	b.On(TypeActivityResponse, name, typed(fn))
}
