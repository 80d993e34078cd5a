// Package routing selects handlers for inbound activities and aggregates
// streamed replies.
package routing

import (
	"errors"
	"regexp"
	"sync"

	"github.com/soyeahso/botkit/internal/domain"
)

// ErrRouterFrozen is returned when a route is registered after dispatch
// has started.
var ErrRouterFrozen = errors.New("routing: router is frozen")

// Matcher decides whether a route applies to an activity.
type Matcher func(a *domain.Activity) bool

// Route is one registered handler.
type Route[H any] struct {
	Name    string
	Match   Matcher
	Handler H
}

// Router is an ordered route table. H is the handler type of the app using
// it, which keeps this package free of app imports.
type Router[H any] struct {
	mu     sync.RWMutex
	routes []Route[H]
	frozen bool
}

// NewRouter creates an empty route table.
func NewRouter[H any]() *Router[H] {
	return &Router[H]{}
}

// Register appends a route. Routes are selected in registration order.
func (r *Router[H]) Register(name string, match Matcher, handler H) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRouterFrozen
	}
	r.routes = append(r.routes, Route[H]{Name: name, Match: match, Handler: handler})
	return nil
}

// Select returns the handlers of every route matching a, in registration
// order. The result is empty, never nil, when nothing matches.
func (r *Router[H]) Select(a *domain.Activity) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]H, 0, len(r.routes))
	for _, rt := range r.routes {
		if rt.Match == nil || rt.Match(a) {
			out = append(out, rt.Handler)
		}
	}
	return out
}

// Names returns the route names in registration order.
func (r *Router[H]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.routes))
	for i, rt := range r.routes {
		names[i] = rt.Name
	}
	return names
}

// Len returns the number of registered routes.
func (r *Router[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Freeze rejects further registrations.
func (r *Router[H]) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Router[H]) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// MatchAny matches every activity.
func MatchAny() Matcher {
	return func(*domain.Activity) bool { return true }
}

// MatchType matches activities of the given type.
func MatchType(t domain.ActivityType) Matcher {
	return func(a *domain.Activity) bool { return a.Type == t }
}

// MatchMessage matches message activities.
func MatchMessage() Matcher {
	return MatchType(domain.ActivityMessage)
}

// MatchMessageText matches message activities whose text matches re.
func MatchMessageText(re *regexp.Regexp) Matcher {
	return func(a *domain.Activity) bool {
		m, ok := a.AsMessage()
		return ok && re.MatchString(m.Text)
	}
}

// MatchEvent matches event activities with the given name.
func MatchEvent(name string) Matcher {
	return func(a *domain.Activity) bool {
		e, ok := a.AsEvent()
		return ok && e.Name == name
	}
}

// MatchInvoke matches invoke activities with the given name.
func MatchInvoke(name string) Matcher {
	return func(a *domain.Activity) bool {
		inv, ok := a.AsInvoke()
		return ok && inv.Name == name
	}
}

// MatchAll matches when every matcher matches.
func MatchAll(ms ...Matcher) Matcher {
	return func(a *domain.Activity) bool {
		for _, m := range ms {
			if !m(a) {
				return false
			}
		}
		return true
	}
}
