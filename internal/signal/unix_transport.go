package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

const (
	readBufferInitial = 64 * 1024
	readBufferMax     = 10 * 1024 * 1024
	notificationDepth = 100
)

// UnixSocketTransport speaks newline-delimited JSON-RPC over the signal-cli
// daemon's UNIX socket.
type UnixSocketTransport struct {
	conn net.Conn

	requestID atomic.Uint64
	pending   map[string]chan *rpcResponse
	pendingMu sync.Mutex

	notifications chan *Notification

	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewUnixSocketTransport connects to the daemon socket and starts the read loop.
func NewUnixSocketTransport(socketPath string) (*UnixSocketTransport, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signal-cli socket: %w", err)
	}

	t := &UnixSocketTransport{
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
func (t *UnixSocketTransport) Call(ctx context.Context, method string, params any) (*json.RawMessage, error) {
	id := "req-" + strconv.FormatUint(t.requestID.Add(1), 10)

	data, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
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

	if _, writeErr := fmt.Fprintf(t.conn, "%s\n", data); writeErr != nil {
		return nil, fmt.Errorf("failed to send request: %w", writeErr)
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
func (t *UnixSocketTransport) readLoop() {
	defer close(t.done)

	scanner := bufio.NewScanner(t.conn)
	scanner.Buffer(make([]byte, readBufferInitial), readBufferMax)

	for scanner.Scan() {
		select {
		case <-t.stopCh:
			return
		default:
		}

		line := scanner.Bytes()

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err == nil && resp.ID != "" {
			t.pendingMu.Lock()
			if ch, ok := t.pending[resp.ID]; ok {
				ch <- &resp
			}
			t.pendingMu.Unlock()
			continue
		}

		var notif Notification
		if err := json.Unmarshal(line, &notif); err == nil && notif.Method != "" {
			select {
			case t.notifications <- &notif:
			case <-t.stopCh:
				return
			}
		}
	}

	_ = scanner.Err()
}

// Subscribe implements Transport.Subscribe.
func (t *UnixSocketTransport) Subscribe(_ context.Context) (<-chan *Notification, error) {
	return t.notifications, nil
}

// Close implements Transport.Close. Safe to call more than once; a daemon
// shutting down can reach it from several paths.
func (t *UnixSocketTransport) Close() error {
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
