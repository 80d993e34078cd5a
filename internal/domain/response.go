package domain

import (
	"context"
	"net/http"
)

// Meta describes how a dispatch was handled.
type Meta struct {
	Routes   int   `json:"routes"`
	ElapseMs int64 `json:"elapseMs"`
}

// Response is the envelope returned to the transport after a dispatch.
type Response struct {
	Status int  `json:"status"`
	Body   any  `json:"body,omitempty"`
	Meta   Meta `json:"meta"`
}

// NewResponse creates a response envelope.
func NewResponse(status int, body any) *Response {
	return &Response{Status: status, Body: body}
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// Sender delivers activities to a conversation and returns the activity as
// recorded by the channel (with its assigned id).
type Sender interface {
	Send(ctx context.Context, activity *Activity, ref ConversationReference, isTargeted bool) (*Activity, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, activity *Activity, ref ConversationReference, isTargeted bool) (*Activity, error)

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, activity *Activity, ref ConversationReference, isTargeted bool) (*Activity, error) {
	return f(ctx, activity, ref, isTargeted)
}
