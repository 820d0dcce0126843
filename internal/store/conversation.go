// Package store provides the in-memory authoritative record of per-conversation
// state, including the automation state machine that governs takeover sessions.
package store

import "time"

// AutomationState represents where a conversation sits in the takeover lifecycle.
type AutomationState string

const (
	// StateIdle indicates no offer is pending and no session is running.
	StateIdle AutomationState = "idle"

	// StateAwaitingApproval indicates an offer was sent and we are waiting on the user.
	StateAwaitingApproval AutomationState = "awaiting_approval"

	// StateActive indicates an automated session is running.
	StateActive AutomationState = "active"

	// StateCoolingDown indicates a session just ended; a fresh counterpart reply
	// inside the grace window can re-activate without a new approval round.
	StateCoolingDown AutomationState = "cooling_down"
)

// Message is one entry in a conversation's recent exchange, either direction.
type Message struct {
	Timestamp time.Time
	Text      string
	FromSelf  bool
	Automated bool
}

// Sample is one of the user's own past messages, retained as style input.
type Sample struct {
	SentAt time.Time
	Text   string
}

// Conversation is a point-in-time snapshot of a tracked thread. Snapshots are
// copies; mutating one has no effect on the store.
type Conversation struct {
	ID              string
	CounterpartName string
	State           AutomationState

	// LastOwnMessageAt reflects only messages genuinely authored by the user.
	// Automated sends never update it, otherwise the inactivity clock would
	// never elapse while a session is itself sending.
	LastOwnMessageAt         time.Time
	LastCounterpartMessageAt time.Time
	DeactivatedAt            time.Time

	TurnsSentThisSession int

	OwnSamples     []Sample
	RecentExchange []Message
}

// HasCounterpartActivity reports whether any counterpart message has been seen.
func (c Conversation) HasCounterpartActivity() bool {
	return !c.LastCounterpartMessageAt.IsZero()
}

// record is the mutable conversation state owned by the store.
type record struct {
	id              string
	counterpartName string
	state           AutomationState

	lastOwnMessageAt         time.Time
	lastCounterpartMessageAt time.Time
	deactivatedAt            time.Time

	turnsSentThisSession int

	ownSamples     []Sample
	recentExchange []Message
}

// snapshot copies the record into an immutable Conversation view.
func (r *record) snapshot() Conversation {
	samples := make([]Sample, len(r.ownSamples))
	copy(samples, r.ownSamples)
	exchange := make([]Message, len(r.recentExchange))
	copy(exchange, r.recentExchange)

	return Conversation{
		ID:                       r.id,
		CounterpartName:          r.counterpartName,
		State:                    r.state,
		LastOwnMessageAt:         r.lastOwnMessageAt,
		LastCounterpartMessageAt: r.lastCounterpartMessageAt,
		DeactivatedAt:            r.deactivatedAt,
		TurnsSentThisSession:     r.turnsSentThisSession,
		OwnSamples:               samples,
		RecentExchange:           exchange,
	}
}
