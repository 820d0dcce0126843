// Package mocks provides test doubles shared across package tests.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/standin/internal/signal"
)

// SentMessage records one Send call.
type SentMessage struct {
	Recipient string
	Text      string
}

// MockMessenger is an in-memory messenger double. It satisfies the sender,
// name-resolver, and subscriber surfaces the core consumes.
type MockMessenger struct {
	mu      sync.Mutex
	sent    []SentMessage
	sendErr error
	names   map[string]string
	events  chan signal.Event
}

// NewMockMessenger creates a messenger double with a buffered event stream.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{
		names:  make(map[string]string),
		events: make(chan signal.Event, 100),
	}
}

// Send records the message, or fails with the configured error.
func (m *MockMessenger) Send(_ context.Context, recipient string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, SentMessage{Recipient: recipient, Text: text})
	return nil
}

// SetSendError makes subsequent Send calls fail.
func (m *MockMessenger) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetName registers a display name for ResolveName.
func (m *MockMessenger) SetName(threadID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[threadID] = name
}

// ResolveName returns the registered display name.
func (m *MockMessenger) ResolveName(_ context.Context, threadID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.names[threadID]
	if !ok {
		return "", fmt.Errorf("no name registered for %q", threadID)
	}
	return name, nil
}

// Subscribe returns the simulated event stream.
func (m *MockMessenger) Subscribe(_ context.Context) (<-chan signal.Event, error) {
	return m.events, nil
}

// SimulateEvent pushes an event onto the stream.
func (m *MockMessenger) SimulateEvent(event signal.Event) {
	m.events <- event
}

// Sent returns a copy of all recorded sends.
func (m *MockMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns recorded sends addressed to recipient.
func (m *MockMessenger) SentTo(recipient string) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []SentMessage
	for _, msg := range m.sent {
		if msg.Recipient == recipient {
			out = append(out, msg)
		}
	}
	return out
}

// Reset clears recorded sends.
func (m *MockMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
