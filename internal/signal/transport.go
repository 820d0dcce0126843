package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Transport is the underlying JSON-RPC connection to the signal-cli daemon.
type Transport interface {
	// Call makes a JSON-RPC call and waits for the matching response.
	Call(ctx context.Context, method string, params any) (*json.RawMessage, error)

	// Subscribe starts receiving server-initiated notifications.
	Subscribe(ctx context.Context) (<-chan *Notification, error)

	// Close closes the transport.
	Close() error
}

// Notification is a JSON-RPC notification pushed by the daemon.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      string           `json:"id"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody    `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCError is a JSON-RPC level error returned by the daemon.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return "RPC error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu sync.RWMutex

	responses     map[string]*mockResponse
	calls         map[string][]any
	notifications chan *Notification
	closed        bool
}

type mockResponse struct {
	result *json.RawMessage
	err    error
}

// NewMockTransport creates a new mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses:     make(map[string]*mockResponse),
		calls:         make(map[string][]any),
		notifications: make(chan *Notification, 100),
	}
}

// SetResponse sets the response for a specific method.
func (m *MockTransport) SetResponse(method string, result *json.RawMessage, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method] = &mockResponse{result: result, err: err}
}

// SetError sets an error response for a specific method.
func (m *MockTransport) SetError(method string, err error) {
	m.SetResponse(method, nil, err)
}

// Calls returns all recorded calls for a specific method.
func (m *MockTransport) Calls(method string) []any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// Call implements Transport.Call.
func (m *MockTransport) Call(ctx context.Context, method string, params any) (*json.RawMessage, error) {
	m.mu.Lock()
	m.calls[method] = append(m.calls[method], params)
	response := m.responses[method]
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if response == nil {
		return nil, fmt.Errorf("no mock response configured for method: %s", method)
	}
	return response.result, response.err
}

// Subscribe implements Transport.Subscribe.
func (m *MockTransport) Subscribe(_ context.Context) (<-chan *Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("transport is closed")
	}
	return m.notifications, nil
}

// SimulateNotification sends a notification to subscribers.
func (m *MockTransport) SimulateNotification(notif *Notification) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.closed {
		m.notifications <- notif
	}
}

// Close implements Transport.Close.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.notifications)
	}
	return nil
}
