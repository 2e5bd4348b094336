package socket

import (
	"context"
	"encoding/json"
)

// Request is one outbound call to the messaging server. Params carries
// the method's positional parameter list, or an object for the few
// methods that take one. ID is assigned by the transport.
type Request struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response is the server's acknowledgement of a request.
type Response struct {
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Result  string          `json:"result"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const ResultSuccess = "success"

// Event is an unsolicited server push.
type Event struct {
	Method string
	Data   json.RawMessage
}

// Transport is the request/event contract the sync core consumes.
// Send is a one-shot request/acknowledgement. SendAndListen behaves
// like Send but additionally subscribes to future push events for the
// entity the request creates or joins.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
	SendAndListen(ctx context.Context, req Request) (*Response, error)
}
