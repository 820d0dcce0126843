package takeover

import (
	"sync"
	"time"
)

// echoTTL bounds how long a recorded send is matched against transport echoes.
const echoTTL = 2 * time.Minute

// echoLedger remembers texts the orchestrator itself sent, so the event
// router can tell an echoed automated send apart from a genuine user message.
// Without it a sync-message echo of our own send would look like the user
// reclaiming control.
type echoLedger struct {
	mu      sync.Mutex
	pending map[string][]echoEntry
	now     func() time.Time
}

type echoEntry struct {
	text string
	at   time.Time
}

func newEchoLedger() *echoLedger {
	return &echoLedger{
		pending: make(map[string][]echoEntry),
		now:     time.Now,
	}
}

// record notes an automated send for the thread.
func (l *echoLedger) record(threadID, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[threadID] = append(l.pending[threadID], echoEntry{text: text, at: l.now()})
}

// consume reports whether text matches a recorded send for the thread and, if
// so, removes it. Each send matches at most one echo.
func (l *echoLedger) consume(threadID, text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-echoTTL)
	entries := l.pending[threadID]
	for i, entry := range entries {
		if entry.at.Before(cutoff) {
			continue
		}
		if entry.text == text {
			l.pending[threadID] = append(entries[:i], entries[i+1:]...)
			return true
		}
	}

	// Drop anything stale while we hold the lock.
	fresh := entries[:0]
	for _, entry := range entries {
		if !entry.at.Before(cutoff) {
			fresh = append(fresh, entry)
		}
	}
	if len(fresh) == 0 {
		delete(l.pending, threadID)
	} else {
		l.pending[threadID] = fresh
	}

	return false
}
