// Package takeover drives the automated-session lifecycle: offering to take a
// conversation over, interpreting the user's answer, running the bounded
// exchange turn by turn, and winding sessions down.
package takeover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/standin/internal/store"
)

// Sender delivers messages through the transport.
type Sender interface {
	Send(ctx context.Context, recipient string, text string) error
}

// NameResolver resolves a display name for a thread.
type NameResolver interface {
	ResolveName(ctx context.Context, threadID string) (string, error)
}

// Generator produces response text from a prompt. Its output is untrusted and
// always passes through Sanitize before use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	fallbackCounterpartName = "your contact"

	// defaultExitMessage is sent when wind-down generation fails or comes
	// back empty.
	defaultExitMessage = "anyway, I have to run. talk soon!"

	offerTemplate = "Looks like you've gone quiet on %s and they're waiting on a reply. " +
		"Want me to cover for you for a few messages? (yes/no)"

	failureNoticeTemplate = "I hit a problem while covering the conversation with %s. " +
		"You have it back now."
)

// Config holds the orchestrator tuning knobs.
type Config struct {
	// SelfNumber is the user's own address; offers and notices go there.
	SelfNumber string

	// MaxTurns bounds automated messages per session.
	MaxTurns int

	// ExchangeDepth and SampleDepth cap how much context each prompt carries.
	ExchangeDepth int
	SampleDepth   int

	// CooldownGrace is how long after deactivation a counterpart reply can
	// re-activate the session without a new approval round.
	CooldownGrace time.Duration

	// ReactivationDelay is the pause before a re-activation re-check, so the
	// resumed session does not look instantaneous.
	ReactivationDelay time.Duration
}

// Orchestrator owns the automated-session protocol on top of the store.
type Orchestrator struct {
	store    *store.Store
	sender   Sender
	resolver NameResolver
	gen      Generator
	cfg      Config

	logger *slog.Logger
	now    func() time.Time

	// turnGuards serializes the generation-turn critical section per thread,
	// so two deliveries can never send two messages for the same turn slot.
	turnGuards    sync.Map // threadID -> chan struct{} (capacity 1)
	reactivations sync.Map // threadID -> struct{}

	// sessionIDs carries the id minted at offer time through the whole
	// offer/session lifecycle, so every log line of one takeover correlates.
	sessionIDs sync.Map // threadID -> string

	echoes *echoLedger
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates a takeover orchestrator.
func New(st *store.Store, sender Sender, resolver NameResolver, gen Generator, cfg Config, opts ...Option) (*Orchestrator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.SelfNumber == "" {
		return nil, fmt.Errorf("self number is required")
	}
	if cfg.MaxTurns <= 0 {
		return nil, fmt.Errorf("max turns must be positive, got %d", cfg.MaxTurns)
	}

	o := &Orchestrator{
		store:    st,
		sender:   sender,
		resolver: resolver,
		gen:      gen,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		echoes:   newEchoLedger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Offer sends a takeover offer for the thread to the user's own address. A
// no-op unless the conversation is offer-eligible at call time, and offers
// are serialized: while any thread awaits approval, no new offer goes out,
// because a free-text reply in the self thread is only unambiguous when at
// most one offer is pending.
func (o *Orchestrator) Offer(ctx context.Context, threadID string) error {
	conv, ok := o.store.Snapshot(threadID)
	if !ok {
		return fmt.Errorf("unknown conversation %q", threadID)
	}
	if !offerable(conv) {
		o.logger.Debug("skipping offer, conversation not eligible",
			"thread", threadID, "state", string(conv.State))
		return nil
	}
	if pending, exists := o.store.AwaitingApprovalThread(); exists {
		o.logger.Debug("skipping offer, another offer pending",
			"thread", threadID, "pending_thread", pending)
		return nil
	}

	name := conv.CounterpartName
	if resolved, err := o.resolveName(ctx, threadID); err == nil {
		name = resolved
	} else if name == "" {
		o.logger.Warn("counterpart name resolution failed, using placeholder",
			"thread", threadID, "error", err)
	}
	if name == "" {
		name = fallbackCounterpartName
	}
	_ = o.store.SetCounterpartName(threadID, name)

	// Mark before sending: if we crash between the two, stuck-awaiting is the
	// conservative state to be stuck in.
	if err := o.store.SetAwaitingApproval(threadID); err != nil {
		return err
	}

	offerID := uuid.NewString()
	offerText := fmt.Sprintf(offerTemplate, name)
	if err := o.sender.Send(ctx, o.cfg.SelfNumber, offerText); err != nil {
		_ = o.store.ClearAwaitingApproval(threadID)
		return fmt.Errorf("offer send failed for %q: %w", threadID, err)
	}

	// The offer echoes back into the self thread as a sync message; record it
	// so the router does not read our own "(yes/no)" as the user's answer.
	o.echoes.record(o.cfg.SelfNumber, offerText)
	o.sessionIDs.Store(threadID, offerID)

	o.logger.Info("takeover offered",
		"thread", threadID, "offer_id", offerID, "counterpart", name)
	return nil
}

// HandleApproval starts a session after the user approved the pending offer.
// Idempotent against duplicate approval events: an already-active session is
// left alone.
func (o *Orchestrator) HandleApproval(ctx context.Context, threadID string) error {
	conv, ok := o.store.Snapshot(threadID)
	if !ok {
		return fmt.Errorf("unknown conversation %q", threadID)
	}
	if conv.State == store.StateActive {
		return nil
	}
	if conv.State != store.StateAwaitingApproval {
		o.logger.Debug("ignoring approval, no offer pending",
			"thread", threadID, "state", string(conv.State))
		return nil
	}

	if err := o.store.EnterActive(threadID); err != nil {
		return err
	}
	o.logger.Info("takeover session started",
		"thread", threadID, "session_id", o.sessionID(threadID), "max_turns", o.cfg.MaxTurns)

	return o.runTurn(ctx, threadID)
}

// HandleDenial clears the pending offer without starting a session.
func (o *Orchestrator) HandleDenial(_ context.Context, threadID string) error {
	if err := o.store.ClearAwaitingApproval(threadID); err != nil {
		return err
	}
	o.logger.Info("takeover declined", "thread", threadID, "offer_id", o.sessionID(threadID))
	o.sessionIDs.Delete(threadID)
	return nil
}

// HandleCounterpartReply reacts to a fresh counterpart message: the next turn
// of an active session, or a delayed re-activation check for a conversation
// still in its cool-down grace window.
func (o *Orchestrator) HandleCounterpartReply(ctx context.Context, threadID string) error {
	conv, ok := o.store.Snapshot(threadID)
	if !ok {
		return nil
	}

	switch conv.State {
	case store.StateActive:
		return o.runTurn(ctx, threadID)
	case store.StateCoolingDown:
		if o.now().Sub(conv.DeactivatedAt) <= o.cfg.CooldownGrace {
			o.scheduleReactivation(ctx, threadID, conv.LastOwnMessageAt)
		}
	case store.StateIdle, store.StateAwaitingApproval:
		// Nothing to drive; the scanner decides whether an offer is due.
	}
	return nil
}

// ConsumeEcho reports whether a self-authored event is the transport echoing
// one of our own automated sends. Consumed echoes must not be treated as the
// user reclaiming control.
func (o *Orchestrator) ConsumeEcho(threadID, text string) bool {
	return o.echoes.consume(threadID, text)
}

// runTurn performs one generation turn. It never loops: the next turn is
// driven by the next inbound counterpart event.
func (o *Orchestrator) runTurn(ctx context.Context, threadID string) error {
	release, acquired := o.tryAcquireTurn(threadID)
	if !acquired {
		o.logger.Debug("turn already in flight", "thread", threadID)
		return nil
	}
	defer release()

	conv, ok := o.store.Snapshot(threadID)
	if !ok {
		return fmt.Errorf("unknown conversation %q", threadID)
	}
	if conv.State != store.StateActive {
		return nil
	}
	if conv.TurnsSentThisSession >= o.cfg.MaxTurns {
		return o.windDown(ctx, threadID)
	}

	raw, err := o.gen.Generate(ctx, buildReplyPrompt(conv, o.cfg.ExchangeDepth, o.cfg.SampleDepth, o.cfg.MaxTurns))
	if err != nil {
		return o.failSession(ctx, threadID, "generation", err)
	}

	// The generation call suspends; the user may have reclaimed the thread in
	// the meantime. Stale results are dropped, never sent.
	current, ok := o.store.Snapshot(threadID)
	if !ok || current.State != store.StateActive {
		o.logger.Info("dropping stale generation result", "thread", threadID)
		return nil
	}

	text := Sanitize(raw)
	if text == "" {
		return o.failSession(ctx, threadID, "generation", fmt.Errorf("empty response after sanitization"))
	}

	if sendErr := o.sender.Send(ctx, threadID, text); sendErr != nil {
		return o.failSession(ctx, threadID, "send", sendErr)
	}

	o.echoes.record(threadID, text)
	o.store.RecordOwnMessage(threadID, text, o.now(), true)
	turns, err := o.store.IncrementTurn(threadID)
	if err != nil {
		return err
	}
	o.logger.Info("automated reply sent",
		"thread", threadID, "session_id", o.sessionID(threadID),
		"turn", turns, "max_turns", o.cfg.MaxTurns)

	if turns >= o.cfg.MaxTurns {
		// The session ends right after its final message; it does not wait
		// for a reply it will never use.
		return o.windDown(ctx, threadID)
	}
	return nil
}

// windDown sends one short exit message and moves the session into cool-down.
// The exit text is generated from the user's own samples only, with a fixed
// fallback; sending it is best-effort.
func (o *Orchestrator) windDown(ctx context.Context, threadID string) error {
	conv, ok := o.store.Snapshot(threadID)
	if !ok {
		return fmt.Errorf("unknown conversation %q", threadID)
	}

	text := defaultExitMessage
	raw, err := o.gen.Generate(ctx, buildWindDownPrompt(conv, o.cfg.SampleDepth))
	if err != nil {
		o.logger.Warn("wind-down generation failed, using fallback",
			"thread", threadID, "error", err)
	} else if sanitized := Sanitize(raw); sanitized != "" {
		text = sanitized
	}

	if sendErr := o.sender.Send(ctx, threadID, text); sendErr != nil {
		o.logger.Warn("wind-down send failed", "thread", threadID, "error", sendErr)
	} else {
		o.echoes.record(threadID, text)
		o.store.RecordOwnMessage(threadID, text, o.now(), true)
	}

	if err := o.store.LeaveActive(threadID); err != nil {
		return err
	}
	o.logger.Info("takeover session wound down",
		"thread", threadID, "session_id", o.sessionID(threadID))
	o.sessionIDs.Delete(threadID)
	return nil
}

// failSession handles an environmental failure mid-session: notify the user
// best-effort, then return control. A failed session lands in Idle so it
// cannot silently retry through the re-activation path.
func (o *Orchestrator) failSession(ctx context.Context, threadID, step string, cause error) error {
	o.logger.Error("takeover session failed",
		"thread", threadID, "session_id", o.sessionID(threadID),
		"step", step, "error", cause)
	o.sessionIDs.Delete(threadID)

	name := fallbackCounterpartName
	if conv, ok := o.store.Snapshot(threadID); ok && conv.CounterpartName != "" {
		name = conv.CounterpartName
	}
	notice := fmt.Sprintf(failureNoticeTemplate, name)
	if sendErr := o.sender.Send(ctx, o.cfg.SelfNumber, notice); sendErr != nil {
		o.logger.Warn("failure notice undeliverable", "thread", threadID, "error", sendErr)
	} else {
		// Like the offer, the notice echoes back into the self thread and must
		// not be classified as a reply to some other pending offer.
		o.echoes.record(o.cfg.SelfNumber, notice)
	}

	return o.store.AbortActive(threadID)
}

// scheduleReactivation arms a single delayed re-check for the thread. At
// expiry the session resumes only if the user has not intervened since.
func (o *Orchestrator) scheduleReactivation(ctx context.Context, threadID string, lastOwnAt time.Time) {
	if _, loaded := o.reactivations.LoadOrStore(threadID, struct{}{}); loaded {
		return
	}
	o.logger.Debug("re-activation check scheduled",
		"thread", threadID, "delay", o.cfg.ReactivationDelay)

	go func() {
		defer o.reactivations.Delete(threadID)

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.ReactivationDelay):
		}

		conv, ok := o.store.Snapshot(threadID)
		if !ok {
			return
		}
		if conv.State != store.StateCoolingDown && conv.State != store.StateIdle {
			return
		}
		if !conv.LastOwnMessageAt.Equal(lastOwnAt) {
			// The user spoke during the delay; control is theirs.
			return
		}

		if err := o.store.EnterActive(threadID); err != nil {
			o.logger.Error("re-activation failed", "thread", threadID, "error", err)
			return
		}
		o.sessionIDs.Store(threadID, uuid.NewString())
		o.logger.Info("takeover session re-activated",
			"thread", threadID, "session_id", o.sessionID(threadID))

		if err := o.runTurn(ctx, threadID); err != nil {
			o.logger.Error("re-activated turn failed", "thread", threadID, "error", err)
		}
	}()
}

// sessionID returns the id minted for the thread's current offer or session,
// or "" when none is in flight.
func (o *Orchestrator) sessionID(threadID string) string {
	if v, ok := o.sessionIDs.Load(threadID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// resolveName guards against a nil resolver and empty results.
func (o *Orchestrator) resolveName(ctx context.Context, threadID string) (string, error) {
	if o.resolver == nil {
		return "", fmt.Errorf("no name resolver configured")
	}
	name, err := o.resolver.ResolveName(ctx, threadID)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("resolver returned empty name for %q", threadID)
	}
	return name, nil
}

// tryAcquireTurn takes the per-thread turn guard without blocking.
func (o *Orchestrator) tryAcquireTurn(threadID string) (func(), bool) {
	v, _ := o.turnGuards.LoadOrStore(threadID, make(chan struct{}, 1))
	guard, _ := v.(chan struct{})
	select {
	case guard <- struct{}{}:
		return func() { <-guard }, true
	default:
		return nil, false
	}
}

// offerable reports whether the conversation may receive an offer right now.
func offerable(conv store.Conversation) bool {
	switch conv.State {
	case store.StateIdle:
		return true
	case store.StateCoolingDown:
		return conv.LastCounterpartMessageAt.After(conv.DeactivatedAt)
	case store.StateAwaitingApproval, store.StateActive:
		return false
	default:
		return false
	}
}
