// Package router is the single ingress point for inbound message events. It
// classifies each event and dispatches to the store and the takeover
// orchestrator.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/standin/internal/approval"
	"github.com/Veraticus/standin/internal/signal"
	"github.com/Veraticus/standin/internal/store"
)

// Subscriber provides the inbound event stream.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan signal.Event, error)
}

// Orchestrator is the slice of the takeover orchestrator the router drives.
type Orchestrator interface {
	HandleApproval(ctx context.Context, threadID string) error
	HandleDenial(ctx context.Context, threadID string) error
	HandleCounterpartReply(ctx context.Context, threadID string) error
	ConsumeEcho(threadID, text string) bool
}

// Router consumes the event stream and keeps the store and orchestrator fed.
// One event is processed at a time, preserving per-thread arrival order.
type Router struct {
	store        *store.Store
	orchestrator Orchestrator
	subscriber   Subscriber
	selfThreadID string

	logger  *slog.Logger
	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

// Option configures the router.
type Option func(*Router)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates an event router.
func New(st *store.Store, orchestrator Orchestrator, subscriber Subscriber, selfThreadID string, opts ...Option) (*Router, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber is required")
	}
	if selfThreadID == "" {
		return nil, fmt.Errorf("self thread id is required")
	}

	r := &Router{
		store:        st,
		orchestrator: orchestrator,
		subscriber:   subscriber,
		selfThreadID: selfThreadID,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Start begins processing events. Blocks until the context is cancelled.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("router already running")
	}
	r.running = true
	r.mu.Unlock()

	events, err := r.subscriber.Subscribe(ctx)
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	r.logger.Info("event router started", "self_thread", r.selfThreadID)

	r.wg.Add(1)
	go r.processEvents(ctx, events)

	<-ctx.Done()

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("event router stopped")
	return nil
}

// IsRunning reports whether the router is currently processing events.
func (r *Router) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Router) processEvents(ctx context.Context, events <-chan signal.Event) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				r.logger.Debug("event channel closed")
				return
			}
			r.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent classifies one event and applies it. A single event's failure
// never halts processing of other conversations.
func (r *Router) HandleEvent(ctx context.Context, event signal.Event) {
	if event.ThreadID == "" || event.Text == "" {
		return
	}

	switch {
	case event.FromSelf && event.ThreadID == r.selfThreadID:
		r.handleSelfThreadMessage(ctx, event)
	case event.FromSelf:
		r.handleOwnMessage(ctx, event)
	default:
		r.handleCounterpartMessage(ctx, event)
	}
}

// handleSelfThreadMessage treats a Note-to-Self message as a possible reply
// to the pending offer. The self thread itself is never monitored, so no
// conversation record is created for it.
func (r *Router) handleSelfThreadMessage(ctx context.Context, event signal.Event) {
	// Offers and failure notices we sent here echo back as sync messages.
	// The offer text ends in "(yes/no)", so an unconsumed echo would be
	// classified as the user's answer.
	if r.orchestrator.ConsumeEcho(event.ThreadID, event.Text) {
		r.logger.Debug("dropping echo of own self-thread send")
		return
	}

	pendingThread, exists := r.store.AwaitingApprovalThread()
	if !exists {
		r.logger.Debug("self-thread message with no pending offer")
		return
	}

	decision := approval.Classify(event.Text)
	r.logger.Info("offer reply received",
		"thread", pendingThread, "decision", decision.String())

	switch decision {
	case approval.DecisionApprove:
		if err := r.orchestrator.HandleApproval(ctx, pendingThread); err != nil {
			r.logger.Error("approval handling failed",
				"thread", pendingThread, "error", err)
		}
	case approval.DecisionDeny:
		if err := r.orchestrator.HandleDenial(ctx, pendingThread); err != nil {
			r.logger.Error("denial handling failed",
				"thread", pendingThread, "error", err)
		}
	case approval.DecisionUnclear:
		// Leave the offer pending; the user may clarify.
	}
}

// handleOwnMessage records a message from the user's side of a counterpart
// thread. Echoes of our own automated sends were already recorded at send
// time and are dropped here; anything else is the user talking, which
// unconditionally returns control.
func (r *Router) handleOwnMessage(ctx context.Context, event signal.Event) {
	_ = ctx

	if r.orchestrator.ConsumeEcho(event.ThreadID, event.Text) {
		r.logger.Debug("dropping echo of automated send", "thread", event.ThreadID)
		return
	}

	r.store.RecordOwnMessage(event.ThreadID, event.Text, event.Timestamp, false)
}

// handleCounterpartMessage records a counterpart message and lets the
// orchestrator decide whether it drives a session turn or a re-activation.
func (r *Router) handleCounterpartMessage(ctx context.Context, event signal.Event) {
	r.store.RecordCounterpartMessage(event.ThreadID, event.Text, event.Timestamp)
	if event.Sender != "" {
		_ = r.store.SetCounterpartName(event.ThreadID, event.Sender)
	}

	if err := r.orchestrator.HandleCounterpartReply(ctx, event.ThreadID); err != nil {
		r.logger.Error("counterpart reply handling failed",
			"thread", event.ThreadID, "error", err)
	}
}
