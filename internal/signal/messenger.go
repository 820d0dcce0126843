package signal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Messenger abstracts the messaging surface the takeover core consumes.
type Messenger interface {
	// Send delivers a message to the given thread.
	Send(ctx context.Context, recipient string, text string) error

	// ListThreads returns the known one-to-one conversations.
	ListThreads(ctx context.Context) ([]Thread, error)

	// ResolveName returns a display name for a thread.
	ResolveName(ctx context.Context, threadID string) (string, error)

	// Subscribe returns a channel of inbound message events, both directions.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// messenger implements Messenger over a Client.
type messenger struct {
	client     Client
	selfNumber string

	mu           sync.Mutex
	subscription *subscription
}

// subscription tracks an active event subscription.
type subscription struct {
	cancel context.CancelFunc
	outCh  chan Event
	done   chan struct{}
}

// NewMessenger creates a Messenger for the given account.
func NewMessenger(client Client, selfNumber string) Messenger {
	return &messenger{
		client:     client,
		selfNumber: selfNumber,
	}
}

// Send implements Messenger.Send.
func (m *messenger) Send(ctx context.Context, recipient string, text string) error {
	if recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("message cannot be empty")
	}

	if err := m.client.Send(ctx, recipient, text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ListThreads implements Messenger.ListThreads.
func (m *messenger) ListThreads(ctx context.Context) ([]Thread, error) {
	contacts, err := m.client.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	threads := make([]Thread, 0, len(contacts))
	for _, contact := range contacts {
		if contact.Number == "" {
			continue
		}
		threads = append(threads, Thread{
			ID:          contact.Number,
			DisplayName: contactDisplayName(contact),
		})
	}
	return threads, nil
}

// ResolveName implements Messenger.ResolveName.
func (m *messenger) ResolveName(ctx context.Context, threadID string) (string, error) {
	threads, err := m.ListThreads(ctx)
	if err != nil {
		return "", err
	}

	for _, thread := range threads {
		if thread.ID == threadID && thread.DisplayName != "" {
			return thread.DisplayName, nil
		}
	}
	return "", fmt.Errorf("no display name for thread %q", threadID)
}

// contactDisplayName picks the best available label for a contact.
func contactDisplayName(contact Contact) string {
	if contact.Name != "" {
		return contact.Name
	}
	if contact.Profile != nil {
		name := strings.TrimSpace(contact.Profile.GivenName + " " + contact.Profile.FamilyName)
		if name != "" {
			return name
		}
	}
	return contact.Number
}

// Subscribe implements Messenger.Subscribe.
func (m *messenger) Subscribe(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Replace any existing subscription.
	if m.subscription != nil {
		m.subscription.cancel()
		<-m.subscription.done
		m.subscription = nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		cancel: cancel,
		outCh:  make(chan Event),
		done:   make(chan struct{}),
	}
	m.subscription = sub

	envelopes, err := m.client.Subscribe(subCtx)
	if err != nil {
		cancel()
		close(sub.done)
		m.subscription = nil
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	go m.runSubscription(subCtx, sub, envelopes)

	return sub.outCh, nil
}

// runSubscription converts envelopes into events until the context ends.
func (m *messenger) runSubscription(ctx context.Context, sub *subscription, envelopes <-chan *Envelope) {
	defer close(sub.done)
	defer close(sub.outCh)

	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-envelopes:
			if !ok {
				return
			}

			event := m.convertEnvelope(envelope)
			if event == nil {
				continue
			}

			select {
			case sub.outCh <- *event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// convertEnvelope maps an envelope onto an Event, or nil for envelope types
// the core does not consume (typing, receipts, group traffic).
func (m *messenger) convertEnvelope(env *Envelope) *Event {
	if env == nil {
		return nil
	}

	// A data message is a counterpart (or Note-to-Self) message.
	if env.DataMessage != nil && env.DataMessage.Message != "" {
		if env.DataMessage.GroupInfo != nil {
			return nil
		}

		threadID := envelopeSource(env)
		fromSelf := threadID == m.selfNumber
		return &Event{
			ThreadID:  threadID,
			Sender:    env.SourceName,
			Text:      env.DataMessage.Message,
			Timestamp: time.Unix(0, env.Timestamp*int64(time.Millisecond)),
			FromSelf:  fromSelf,
		}
	}

	// A sent sync message is the user talking from any linked device. These
	// drive the inactivity clock and the unconditional reclaim rule, so they
	// are surfaced rather than dropped.
	if env.SyncMessage != nil && env.SyncMessage.SentMessage != nil {
		sent := env.SyncMessage.SentMessage
		if sent.Message == nil || sent.Message.Message == "" || sent.Destination == "" {
			return nil
		}
		if sent.Message.GroupInfo != nil {
			return nil
		}

		return &Event{
			ThreadID:  sent.Destination,
			Text:      sent.Message.Message,
			Timestamp: time.Unix(0, sent.Timestamp*int64(time.Millisecond)),
			FromSelf:  true,
		}
	}

	return nil
}

// envelopeSource extracts the sender identifier from an envelope.
func envelopeSource(env *Envelope) string {
	if env.SourceNumber != "" {
		return env.SourceNumber
	}
	return env.Source
}
