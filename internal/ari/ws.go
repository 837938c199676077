package ari

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// eventStream owns one WebSocket connection to the PBX event endpoint. It is
// grounded on pkg/provider/s2s/gemini's session: a single receive-loop
// goroutine that decodes frames and owns the output channel's lifetime,
// closing it when the read loop exits, with Close driving shutdown via
// context cancellation rather than a direct goroutine signal.
type eventStream struct {
	conn   *websocket.Conn
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	errVal    error
}

// SubscribeEvents dials the PBX's WebSocket event endpoint for this
// client's configured application and returns a channel of decoded events.
// The channel is closed when the connection drops or ctx is cancelled; call
// Err (not exposed on the channel) is unnecessary here since the event loop
// never needs to report a terminal error back through anything but channel
// closure — callers treat a closed channel as "reconnect or give up."
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, func() error, error) {
	wsURL := toWebSocketURL(c.baseURL) + "/events?app=" + c.appName + "&api_key=" + c.username + ":" + c.password

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ari: dial event stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	es := &eventStream{
		conn:   conn,
		events: make(chan Event, 32),
		ctx:    streamCtx,
		cancel: cancel,
	}

	go es.receiveLoop()

	return es.events, es.Close, nil
}

func toWebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

// receiveLoop reads event frames from the WebSocket and decodes them. It
// owns the events channel: it closes it when it exits, whether that's
// because the connection errored or because Close cancelled the context.
func (es *eventStream) receiveLoop() {
	defer es.closeChannel()

	for {
		_, data, err := es.conn.Read(es.ctx)
		if err != nil {
			if es.ctx.Err() != nil {
				return
			}
			es.setErr(err)
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}

		select {
		case es.events <- ev:
		case <-es.ctx.Done():
			return
		}
	}
}

func (es *eventStream) setErr(err error) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.errVal == nil {
		es.errVal = err
	}
}

// Err returns the error that ended the stream, if it ended abnormally.
func (es *eventStream) Err() error {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.errVal
}

func (es *eventStream) closeChannel() {
	es.closeOnce.Do(func() { close(es.events) })
}

// Close terminates the event stream and releases the connection. Idempotent.
func (es *eventStream) Close() error {
	es.mu.Lock()
	if es.closed {
		es.mu.Unlock()
		return nil
	}
	es.closed = true
	es.mu.Unlock()

	es.cancel()
	return es.conn.Close(websocket.StatusNormalClosure, "event stream closed")
}
