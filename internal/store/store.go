package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultSampleCap bounds the retained own-message style samples.
	DefaultSampleCap = 25

	// DefaultExchangeCap bounds the retained recent exchange.
	DefaultExchangeCap = 40
)

// Store is the single shared mutable resource of the system. All mutation goes
// through its method contract; no component touches Conversation fields
// directly. Every mutator is atomic under the store mutex.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*record

	sampleCap   int
	exchangeCap int

	now    func() time.Time
	logger *slog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source, used by tests that need exact bounds.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty conversation store. Caps at or below zero fall back to
// the defaults.
func New(sampleCap, exchangeCap int, opts ...Option) *Store {
	if sampleCap <= 0 {
		sampleCap = DefaultSampleCap
	}
	if exchangeCap <= 0 {
		exchangeCap = DefaultExchangeCap
	}

	s := &Store{
		conversations: make(map[string]*record),
		sampleCap:     sampleCap,
		exchangeCap:   exchangeCap,
		now:           time.Now,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// getOrCreate returns the record for threadID, creating it if needed.
// Callers must hold s.mu.
func (s *Store) getOrCreate(threadID string) *record {
	if r, ok := s.conversations[threadID]; ok {
		return r
	}

	r := &record{
		id:    threadID,
		state: StateIdle,
	}
	s.conversations[threadID] = r
	s.logger.Debug("tracking new conversation", "thread", threadID)
	return r
}

// lookup returns the record for threadID or an error if it was never created.
// A missing record here is a caller bug, not an environmental condition.
// Callers must hold s.mu.
func (s *Store) lookup(threadID string) (*record, error) {
	r, ok := s.conversations[threadID]
	if !ok {
		return nil, fmt.Errorf("unknown conversation %q", threadID)
	}
	return r, nil
}

// GetOrCreate returns a snapshot of the conversation, creating an Idle record
// with empty history on first sight. Never fails.
func (s *Store) GetOrCreate(threadID string) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(threadID).snapshot()
}

// Snapshot returns a snapshot of an existing conversation, if any.
func (s *Store) Snapshot(threadID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.conversations[threadID]
	if !ok {
		return Conversation{}, false
	}
	return r.snapshot(), true
}

// All returns snapshots of every tracked conversation.
func (s *Store) All() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.conversations))
	for _, r := range s.conversations {
		out = append(out, r.snapshot())
	}
	return out
}

// RecordOwnMessage records a message sent from the user's side of the thread.
// Automated sends are recorded as thread activity only. A genuine user message
// additionally updates the inactivity clock, feeds the style samples, and
// unconditionally returns control: whatever the automation state was, it
// becomes Idle and the turn counter resets.
func (s *Store) RecordOwnMessage(threadID, text string, sentAt time.Time, automated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getOrCreate(threadID)
	r.recentExchange = appendCapped(r.recentExchange, Message{
		Timestamp: sentAt,
		Text:      text,
		FromSelf:  true,
		Automated: automated,
	}, s.exchangeCap)

	if automated {
		return
	}

	r.lastOwnMessageAt = sentAt
	r.ownSamples = appendCapped(r.ownSamples, Sample{SentAt: sentAt, Text: text}, s.sampleCap)

	if r.state != StateIdle {
		s.logger.Info("user message returns control",
			"thread", threadID,
			"from_state", string(r.state))
	}
	r.state = StateIdle
	r.turnsSentThisSession = 0
}

// RecordCounterpartMessage records a message received from the counterpart.
func (s *Store) RecordCounterpartMessage(threadID, text string, receivedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getOrCreate(threadID)
	r.recentExchange = appendCapped(r.recentExchange, Message{
		Timestamp: receivedAt,
		Text:      text,
	}, s.exchangeCap)
	r.lastCounterpartMessageAt = receivedAt
}

// SetCounterpartName records a resolved display name for the thread.
func (s *Store) SetCounterpartName(threadID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(threadID)
	if err != nil {
		return err
	}
	if name != "" {
		r.counterpartName = name
	}
	return nil
}

// SetAwaitingApproval marks an offer as outstanding for the thread.
func (s *Store) SetAwaitingApproval(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(threadID)
	if err != nil {
		return err
	}
	r.state = StateAwaitingApproval
	return nil
}

// ClearAwaitingApproval returns an offer-awaiting thread to Idle. A no-op for
// any other state.
func (s *Store) ClearAwaitingApproval(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(threadID)
	if err != nil {
		return err
	}
	if r.state == StateAwaitingApproval {
		r.state = StateIdle
	}
	return nil
}

// AwaitingApprovalThread returns the thread with an outstanding offer, if any.
// Offers are serialized, so there is at most one.
func (s *Store) AwaitingApprovalThread() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.conversations {
		if r.state == StateAwaitingApproval {
			return id, true
		}
	}
	return "", false
}

// EnterActive starts an automated session: clears any pending offer and resets
// the turn counter.
func (s *Store) EnterActive(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(threadID)
	if err != nil {
		return err
	}
	r.state = StateActive
	r.turnsSentThisSession = 0
	return nil
}

// LeaveActive ends a session normally, entering the cool-down grace window.
func (s *Store) LeaveActive(threadID string) error {
	return s.deactivate(threadID, StateCoolingDown)
}

// AbortActive ends a session after a failure. A failed session lands in Idle
// rather than CoolingDown so it cannot silently retry through the
// approval-free re-activation path.
func (s *Store) AbortActive(threadID string) error {
	return s.deactivate(threadID, StateIdle)
}

func (s *Store) deactivate(threadID string, to AutomationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(threadID)
	if err != nil {
		return err
	}
	r.state = to
	r.turnsSentThisSession = 0
	r.deactivatedAt = s.now()
	return nil
}

// IncrementTurn bumps the session turn counter and returns the new count.
func (s *Store) IncrementTurn(threadID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(threadID)
	if err != nil {
		return 0, err
	}
	r.turnsSentThisSession++
	return r.turnsSentThisSession, nil
}

// ExpireCooldowns transitions conversations whose cool-down grace window has
// elapsed back to Idle. Returns the number expired.
func (s *Store) ExpireCooldowns(grace time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := 0
	for id, r := range s.conversations {
		if r.state == StateCoolingDown && now.Sub(r.deactivatedAt) > grace {
			r.state = StateIdle
			expired++
			s.logger.Debug("cool-down expired", "thread", id)
		}
	}
	return expired
}

// ListEligibleForOffer selects conversations due a takeover offer. A thread is
// eligible when it is Idle (or CoolingDown with counterpart activity after
// deactivation), the user has been quiet for at least threshold but no longer
// than maxInactivity (both bounds inclusive), and the counterpart sent
// something within recentWindow so a reply is actually owed. The exclude id is
// the user's own self-thread, which is never monitored.
func (s *Store) ListEligibleForOffer(threshold, maxInactivity, recentWindow time.Duration, excludeThreadID string) []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var eligible []Conversation
	for id, r := range s.conversations {
		if id == excludeThreadID {
			continue
		}
		if !offerableState(r) {
			continue
		}
		if r.lastOwnMessageAt.IsZero() {
			continue
		}

		inactivity := now.Sub(r.lastOwnMessageAt)
		if inactivity < threshold || inactivity > maxInactivity {
			continue
		}

		if r.lastCounterpartMessageAt.IsZero() {
			continue
		}
		if now.Sub(r.lastCounterpartMessageAt) >= recentWindow {
			continue
		}

		// Re-check under the same critical section; mutators cannot have
		// interleaved, so this only guards future refactors that release
		// the lock mid-scan.
		if offerableState(r) {
			eligible = append(eligible, r.snapshot())
		}
	}
	return eligible
}

// offerableState reports whether a conversation may receive an offer: Idle, or
// cooling down with fresh counterpart activity since deactivation.
func offerableState(r *record) bool {
	switch r.state {
	case StateIdle:
		return true
	case StateCoolingDown:
		return r.lastCounterpartMessageAt.After(r.deactivatedAt)
	default:
		return false
	}
}

// appendCapped appends v and drops the oldest entries beyond limit.
func appendCapped[T any](seq []T, v T, limit int) []T {
	seq = append(seq, v)
	if len(seq) > limit {
		seq = seq[len(seq)-limit:]
	}
	return seq
}
