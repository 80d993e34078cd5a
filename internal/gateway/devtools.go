package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/events"
	"github.com/soyeahso/botkit/internal/version"
)

const (
	devtoolsReadLimit        = 1 << 20
	devtoolsHandshakeTimeout = 10 * time.Second
)

// EventPayload is what devtools clients receive for each bus event.
type EventPayload struct {
	Source       string                        `json:"source,omitempty"`
	Activity     *domain.Activity              `json:"activity,omitempty"`
	Conversation *domain.ConversationReference `json:"conversation,omitempty"`
	Response     *domain.Response              `json:"response,omitempty"`
	Error        string                        `json:"error,omitempty"`
	AppID        string                        `json:"appId,omitempty"`
	AppName      string                        `json:"appName,omitempty"`
}

func eventPayload(e events.Event) EventPayload {
	p := EventPayload{Source: e.Source}
	switch v := e.Payload.(type) {
	case events.StartEvent:
		p.AppID, p.AppName = v.AppID, v.AppName
	case events.ErrorEvent:
		if v.Err != nil {
			p.Error = v.Err.Error()
		}
		p.Activity, p.Conversation = v.Activity, v.Ref
	case events.SignInEvent:
		p.Activity = v.Activity
	case events.ActivityEvent:
		p.Activity = v.Activity
	case events.ActivitySentEvent:
		ref := v.Ref
		p.Activity, p.Conversation = v.Activity, &ref
	case events.ActivityResponseEvent:
		p.Activity, p.Response = v.Activity, v.Response
	}
	return p
}

// broadcast is subscribed to every built-in event when devtools are on.
func (s *Server) broadcast(_ context.Context, e events.Event) (any, error) {
	if s.clients.Count() == 0 {
		return nil, nil
	}
	s.clients.Broadcast(string(e.Type), eventPayload(e), s.eventSeq.Add(1))
	return nil, nil
}

// handleDevtools upgrades to a websocket and streams bus events until the
// client disconnects.
func (s *Server) handleDevtools(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited after failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(devtoolsReadLimit)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("devtools handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(client)
}

// handshake runs challenge → connect → hello.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(devtoolsHandshakeTimeout))

	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
			return nil, fmt.Errorf("parsing connect params: %w", err)
		}
	}

	if res := AuthorizeDevtools(s.auth, params.Auth); !res.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", res.Reason)
		return nil, fmt.Errorf("auth failed: %s", res.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	client := NewClient(conn, params.Client)

	names := make([]string, len(events.AllTypes))
	for i, t := range events.AllTypes {
		names[i] = string(t)
	}
	hello, err := NewResponse(frame.ID, HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Name:    s.appName,
			Version: version.Version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Events: names,
	})
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	return client, nil
}

// readLoop answers pings and discards other frames until the socket closes.
func (s *Server) readLoop(client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("devtools client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("devtools read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}

		switch frame.Method {
		case "ping":
			resp, _ := NewResponse(frame.ID, map[string]any{"ts": time.Now().UnixMilli()})
			client.Send(resp)
		default:
			client.Send(NewErrorResponse(frame.ID, ErrorShape{
				Code:    "method_not_found",
				Message: "unknown method: " + frame.Method,
			}))
		}
	}
}

// sendErrorAndClose sends an error response and closes the connection.
func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
