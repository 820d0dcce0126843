package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Client is the typed JSON-RPC surface of the signal-cli daemon.
type Client interface {
	// Send sends a text message to a single recipient.
	Send(ctx context.Context, recipient, message string) error

	// ListContacts returns the daemon's contact list.
	ListContacts(ctx context.Context) ([]Contact, error)

	// Subscribe starts receiving incoming message envelopes.
	Subscribe(ctx context.Context) (<-chan *Envelope, error)

	// Close closes the underlying transport.
	Close() error
}

// envelopeDepth buffers parsed envelopes between the notification loop and
// the consumer, matching the transports' notificationDepth in spirit.
const envelopeDepth = 10

type sendParams struct {
	Recipients []string `json:"recipient"`
	Message    string   `json:"message"`
}

// client implements Client over a Transport.
type client struct {
	transport Transport
	logger    *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*client)

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *client) {
		c.logger = logger
	}
}

// NewClient creates a Client over the given transport.
func NewClient(transport Transport, opts ...ClientOption) Client {
	c := &client{
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send implements Client.Send.
func (c *client) Send(ctx context.Context, recipient, message string) error {
	if recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}

	_, err := c.transport.Call(ctx, "send", &sendParams{
		Recipients: []string{recipient},
		Message:    message,
	})
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// ListContacts implements Client.ListContacts.
func (c *client) ListContacts(ctx context.Context) ([]Contact, error) {
	result, err := c.transport.Call(ctx, "listContacts", struct{}{})
	if err != nil {
		return nil, fmt.Errorf("listContacts failed: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	var contacts []Contact
	if unmarshalErr := json.Unmarshal(*result, &contacts); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse contact list: %w", unmarshalErr)
	}
	return contacts, nil
}

// Subscribe implements Client.Subscribe.
func (c *client) Subscribe(ctx context.Context) (<-chan *Envelope, error) {
	notifications, err := c.transport.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to transport: %w", err)
	}

	envelopes := make(chan *Envelope, envelopeDepth)
	go c.processNotifications(ctx, notifications, envelopes)
	return envelopes, nil
}

// processNotifications converts receive notifications into envelopes.
func (c *client) processNotifications(ctx context.Context, notifications <-chan *Notification, envelopes chan<- *Envelope) {
	defer close(envelopes)

	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-notifications:
			if !ok {
				return
			}
			if notif.Method != "receive" {
				continue
			}

			envelope := c.parseEnvelope(notif)
			if envelope == nil {
				continue
			}

			select {
			case envelopes <- envelope:
			case <-ctx.Done():
				return
			}
		}
	}
}

// parseEnvelope extracts an envelope from a receive notification.
func (c *client) parseEnvelope(notif *Notification) *Envelope {
	var params struct {
		Envelope *Envelope `json:"envelope"`
	}
	if err := json.Unmarshal(notif.Params, &params); err != nil {
		c.logger.Debug("failed to parse receive notification", "error", err)
		return nil
	}
	return params.Envelope
}

// Close implements Client.Close.
func (c *client) Close() error {
	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}
