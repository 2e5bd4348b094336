package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// wsConn abstracts the WebSocket connection so Client can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Client implements Transport over a persistent WebSocket. A single
// reader goroutine correlates responses to in-flight requests by id
// and hands everything else to the event handler.
type Client struct {
	url     string
	token   string
	logger  *zap.Logger
	onEvent func(Event)

	conn    wsConn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan *Response

	subsMu sync.Mutex
	subs   map[string]struct{}

	readCancel context.CancelFunc
}

func NewClient(url, token string, onEvent func(Event), logger *zap.Logger) *Client {
	return &Client{
		url:     url,
		token:   token,
		logger:  logger,
		onEvent: onEvent,
		pending: make(map[string]chan *Response),
		subs:    make(map[string]struct{}),
	}
}

// Connect dials the server, retrying with exponential backoff until the
// context is cancelled, then starts the reader.
func (c *Client) Connect(ctx context.Context) error {
	dial := func() error {
		conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{ //nolint:bodyclose // Dial closes the response body internally
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}},
		})
		if err != nil {
			c.logger.Warn("dial failed", zap.Error(err))
			return err
		}
		c.conn = conn
		return nil
	}
	if err := backoff.Retry(dial, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel
	go c.readLoop(readCtx)

	c.logger.Info("connected", zap.String("url", c.url))
	return nil
}

// Close tears down the connection and fails all in-flight requests.
func (c *Client) Close() error {
	if c.readCancel != nil {
		c.readCancel()
	}
	if c.conn == nil {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}

// Send issues one request and waits for the matching response. A server
// rejection ("fail" result) surfaces as an error to the caller.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("send %s: not connected", req.Method)
	}
	req.ID = uuid.NewString()

	ch := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Method, err)
	}

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Method, err)
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("send %s: connection closed", req.Method)
		}
		if resp.Result != ResultSuccess {
			return nil, fmt.Errorf("%s request rejected: %s", req.Method, resp.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendAndListen issues the request and records a subscription for the
// method so related pushes keep flowing to the event handler after the
// acknowledgement.
func (c *Client) SendAndListen(ctx context.Context, req Request) (*Response, error) {
	c.subsMu.Lock()
	c.subs[req.Method] = struct{}{}
	c.subsMu.Unlock()
	return c.Send(ctx, req)
}

// Subscribed reports whether SendAndListen has been used for a method.
func (c *Client) Subscribed(method string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	_, ok := c.subs[method]
	return ok
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.logger.Warn("read loop stopped", zap.Error(err))
			c.failPending()
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound frame: frames carrying a known request id
// resolve an in-flight Send, everything else is a push event.
func (c *Client) dispatch(data []byte) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Debug("unparseable frame", zap.Int("bytes", len(data)))
		return
	}

	if resp.ID != "" {
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- &resp
			return
		}
	}

	if c.onEvent != nil {
		c.onEvent(Event{Method: resp.Method, Data: resp.Data})
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}
