// Package signal integrates with a signal-cli daemon over JSON-RPC and exposes
// the narrow messaging surface the takeover core consumes.
package signal

import "time"

// Event is a single inbound message event, either direction of any thread.
type Event struct {
	// ThreadID identifies the conversation: the counterpart's number, or the
	// user's own number for the Note-to-Self thread.
	ThreadID string

	// Sender is the best-effort display name of whoever authored the message.
	Sender string

	Text      string
	Timestamp time.Time

	// FromSelf marks messages authored on the user's side, from any linked
	// device. These include sync messages; the inactivity clock and the
	// user-reclaim rule depend on seeing them.
	FromSelf bool
}

// Thread is a conversation known to the transport.
type Thread struct {
	ID          string
	DisplayName string
}

// Envelope is an incoming signal-cli message envelope.
type Envelope struct {
	Source       string `json:"source"`
	SourceNumber string `json:"sourceNumber"`
	SourceName   string `json:"sourceName"`
	Timestamp    int64  `json:"timestamp"`

	// Only one of these is non-nil per envelope.
	DataMessage    *DataMessage    `json:"dataMessage,omitempty"`
	SyncMessage    *SyncMessage    `json:"syncMessage,omitempty"`
	TypingMessage  *TypingMessage  `json:"typingMessage,omitempty"`
	ReceiptMessage *ReceiptMessage `json:"receiptMessage,omitempty"`
}

// DataMessage is a standard inbound message.
type DataMessage struct {
	Timestamp int64      `json:"timestamp"`
	Message   string     `json:"message"`
	GroupInfo *GroupInfo `json:"groupInfo,omitempty"`
}

// SyncMessage carries activity from the user's other linked devices.
type SyncMessage struct {
	SentMessage *SentSyncMessage `json:"sentMessage,omitempty"`
}

// SentSyncMessage is a message the user sent from another device.
type SentSyncMessage struct {
	Destination string       `json:"destination"`
	Timestamp   int64        `json:"timestamp"`
	Message     *DataMessage `json:"message,omitempty"`
}

// TypingMessage is a typing indicator; the core ignores these.
type TypingMessage struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// ReceiptMessage is a delivery/read receipt; the core ignores these.
type ReceiptMessage struct {
	When       int64   `json:"when"`
	IsDelivery bool    `json:"isDelivery"`
	IsRead     bool    `json:"isRead"`
	Timestamps []int64 `json:"timestamps"`
}

// GroupInfo identifies a group thread. Group conversations are not monitored.
type GroupInfo struct {
	GroupID string `json:"groupId"`
	Type    string `json:"type"`
}

// Contact is an entry from the daemon's contact list.
type Contact struct {
	Number  string       `json:"number"`
	Name    string       `json:"name,omitempty"`
	Profile *ContactInfo `json:"profile,omitempty"`
}

// ContactInfo is profile-derived naming for a contact.
type ContactInfo struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}
