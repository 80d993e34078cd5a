package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/soyeahso/botkit/internal/api"
	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
	"github.com/soyeahso/botkit/internal/routing"
)

type named interface {
	Name() string
}

func senderName(s domain.Sender) string {
	if n, ok := s.(named); ok {
		return n.Name()
	}
	return "app"
}

// ProcessBySender dispatches an activity with the registered sender plugin
// of the given name.
func (a *App) ProcessBySender(ctx context.Context, name string, token domain.Token, act *domain.Activity, extra map[string]any) (*domain.Response, error) {
	s, ok := a.plugins.Sender(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSenderNotFound, name)
	}
	return a.Process(ctx, s, token, act, extra), nil
}

// Process runs an inbound activity through the matching routes. It never
// returns nil and never panics: handler failures become a 500 envelope
// after an error event.
func (a *App) Process(ctx context.Context, sender domain.Sender, token domain.Token, act *domain.Activity, extra map[string]any) (resp *domain.Response) {
	start := time.Now()
	source := senderName(sender)
	path := act.Path()
	log := a.log.With("path", path)

	a.router.Freeze()
	routes := a.router.Select(act)

	fallback := a.serviceURL
	if token != nil && token.ServiceURL() != "" {
		fallback = token.ServiceURL()
	}
	ref := domain.ReferenceFrom(act, fallback)

	c := &Context{
		ctx:            ctx,
		app:            a,
		sender:         sender,
		source:         source,
		log:            log,
		Activity:       act,
		Ref:            ref,
		AppID:          a.ID(),
		ConnectionName: a.oauth.DefaultConnectionName,
		Storage:        a.storage,
		Extra:          extra,
	}
	if token != nil {
		if token.AppID() != "" {
			c.AppID = token.AppID()
		}
		c.TenantID = token.TenantID()
	}
	if c.TenantID == "" {
		c.TenantID = act.Conversation.TenantID
	}
	c.lookupUserToken()

	c.Stream = routing.NewStream(ctx, routing.StreamOptions{
		Sender: sender,
		Ref:    ref,
		Config: a.streamCfg,
		Log:    log,
		OnChunk: func(res *domain.Activity) {
			kind := string(res.ChannelData.StreamType())
			if kind == "" {
				kind = "message"
			}
			a.metrics.RecordChunk(kind)
			a.emitSent(ctx, source, res, ref)
		},
		OnError: func(err error) {
			log.Warn().Err(err).Msg("stream flush failed")
		},
	})

	var (
		data any
		i    = -1
	)
	c.next = func() (any, error) {
		if i+1 >= len(routes) {
			return data, nil
		}
		i++
		res, err := routes[i](c)
		if err != nil {
			return nil, err
		}
		if res != nil {
			data = res
		}
		return res, nil
	}

	fail := func(err error) *domain.Response {
		log.Error().Err(err).Str("activityId", act.ID).Msg("activity handler failed")
		a.emitError(ctx, source, err, act, &ref)
		if err := c.Stream.Abort(ctx); err != nil {
			log.Warn().Err(err).Msg("stream abort failed")
		}
		r := domain.NewResponse(http.StatusInternalServerError, nil)
		r.Meta = domain.Meta{Routes: i + 1, ElapseMs: time.Since(start).Milliseconds()}
		return r
	}

	defer func() {
		if rec := recover(); rec != nil {
			resp = fail(fmt.Errorf("panic in handler: %v", rec))
		}
		a.metrics.RecordDispatch(string(act.Type), resp.Status, time.Since(start))
		a.bus.Emit(ctx, source, events.TypeActivityResponse, events.ActivityResponseEvent{Activity: act, Response: resp})
	}()

	a.bus.Emit(ctx, source, events.TypeActivity, events.ActivityEvent{Activity: act, Token: token, Extra: extra})
	a.notifyObservers(ctx, events.ActivityEvent{Activity: act, Token: token, Extra: extra})

	if _, err := c.Next(); err != nil {
		return fail(err)
	}
	if _, err := c.Stream.Close(ctx); err != nil {
		return fail(fmt.Errorf("closing stream: %w", err))
	}

	if r, ok := data.(*domain.Response); ok {
		resp = r
	} else {
		resp = domain.NewResponse(http.StatusOK, data)
	}
	resp.Meta = domain.Meta{Routes: i + 1, ElapseMs: time.Since(start).Milliseconds()}

	log.Debug().Int("routes", resp.Meta.Routes).Int("status", resp.Status).Msg("activity processed")
	return resp
}

// notifyObservers runs every plugin observer. A failing observer is logged
// and does not stop the others or the dispatch.
func (a *App) notifyObservers(ctx context.Context, e events.ActivityEvent) {
	for _, o := range a.plugins.Observers() {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					a.log.Error().Str("plugin", o.Name).Interface("panic", rec).Msg("activity observer panicked")
				}
			}()
			if err := o.Observer.OnActivity(ctx, e); err != nil {
				a.log.Warn().Err(err).Str("plugin", o.Name).Msg("activity observer failed")
			}
		}()
	}
}

// lookupUserToken marks the context signed in when the token service
// already holds a token for the default connection.
func (c *Context) lookupUserToken() {
	if c.app.tokens == nil || c.Activity.From.ID == "" {
		return
	}
	tok, err := c.app.tokens.GetUserToken(c.ctx, api.TokenRequest{
		UserID:         c.Activity.From.ID,
		ChannelID:      c.Activity.ChannelID,
		ConnectionName: c.ConnectionName,
	})
	if err != nil {
		if !errors.Is(err, api.ErrTokenNotFound) {
			c.log.Debug().Err(err).Msg("user token lookup failed")
		}
		return
	}
	c.IsSignedIn = true
	c.UserToken = tok
}
