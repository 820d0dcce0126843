package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// WebSocketTransport speaks the same JSON-RPC contract over a websocket
// endpoint, for daemons exposing the HTTP API instead of a local socket.
type WebSocketTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	requestID atomic.Uint64
	pending   map[string]chan *rpcResponse
	pendingMu sync.Mutex

	notifications chan *Notification

	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport dials the daemon websocket endpoint and starts the
// read loop.
func NewWebSocketTransport(url string) (*WebSocketTransport, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signal websocket %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t := &WebSocketTransport{
		conn:          conn,
		pending:       make(map[string]chan *rpcResponse),
		notifications: make(chan *Notification, notificationDepth),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}

	go t.readLoop()

	return t, nil
}

// Call implements Transport.Call.
func (t *WebSocketTransport) Call(ctx context.Context, method string, params any) (*json.RawMessage, error) {
	id := "req-" + strconv.FormatUint(t.requestID.Add(1), 10)

	req := &rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	respCh := make(chan *rpcResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respCh
	t.pendingMu.Unlock()

	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	t.writeMu.Lock()
	err := t.conn.WriteJSON(req)
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled while waiting for response: %w", ctx.Err())
	case <-t.stopCh:
		return nil, fmt.Errorf("transport closed while waiting for response")
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
		}
		return resp.Result, nil
	}
}

// readLoop dispatches responses to pending calls and forwards notifications.
func (t *WebSocketTransport) readLoop() {
	defer close(t.done)

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}

		var resp rpcResponse
		if unmarshalErr := json.Unmarshal(data, &resp); unmarshalErr == nil && resp.ID != "" {
			t.pendingMu.Lock()
			if ch, ok := t.pending[resp.ID]; ok {
				ch <- &resp
			}
			t.pendingMu.Unlock()
			continue
		}

		var notif Notification
		if unmarshalErr := json.Unmarshal(data, &notif); unmarshalErr == nil && notif.Method != "" {
			select {
			case t.notifications <- &notif:
			case <-t.stopCh:
				return
			}
		}
	}
}

// Subscribe implements Transport.Subscribe.
func (t *WebSocketTransport) Subscribe(_ context.Context) (<-chan *Notification, error) {
	return t.notifications, nil
}

// Close implements Transport.Close. Safe to call more than once; a daemon
// shutting down can reach it from several paths.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopCh)
		err = t.conn.Close()
		<-t.done
	})
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
