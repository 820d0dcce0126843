package takeover

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/standin/internal/store"
)

func promptConversation() store.Conversation {
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	return store.Conversation{
		ID:                   "+15551234567",
		CounterpartName:      "Dana",
		TurnsSentThisSession: 1,
		OwnSamples: []store.Sample{
			{SentAt: base, Text: "haha yeah for sure"},
			{SentAt: base.Add(time.Minute), Text: "omw, grabbing coffee first"},
		},
		RecentExchange: []store.Message{
			{Timestamp: base, Text: "dinner at 8?", FromSelf: false},
			{Timestamp: base.Add(time.Minute), Text: "yeah 8 works", FromSelf: true},
			{Timestamp: base.Add(2 * time.Minute), Text: "cool, see you there", FromSelf: false},
		},
	}
}

func TestBuildReplyPrompt(t *testing.T) {
	prompt := buildReplyPrompt(promptConversation(), 10, 5, 3)

	want := strings.Join([]string{
		"You are ghostwriting a chat reply to Dana on behalf of the person whose messages appear below.",
		"This is automated message 2 of at most 3; keep the exchange low-key and natural.",
		"",
		"Samples of how this person writes:",
		"- haha yeah for sure",
		"- omw, grabbing coffee first",
		"",
		"Recent conversation, oldest first:",
		"Dana: dinner at 8?",
		"me: yeah 8 works",
		"Dana: cool, see you there",
		"",
		"Write exactly one short reply in this person's voice. " +
			"Output only the message text itself: no preamble, no quotes, no explanation.",
	}, "\n")

	if diff := cmp.Diff(want, prompt); diff != "" {
		t.Errorf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildReplyPromptFallbacks(t *testing.T) {
	conv := store.Conversation{ID: "+15551234567"}
	prompt := buildReplyPrompt(conv, 10, 5, 3)

	assert.Contains(t, prompt, fallbackCounterpartName)
	assert.Contains(t, prompt, "(no samples available; keep it brief and casual)")
	assert.Contains(t, prompt, "(no prior messages)")
	assert.Contains(t, prompt, "automated message 1 of at most 3")
}

func TestBuildReplyPromptRespectsDepths(t *testing.T) {
	conv := promptConversation()
	prompt := buildReplyPrompt(conv, 2, 1, 3)

	// Only the most recent sample and the last two exchange lines survive.
	assert.NotContains(t, prompt, "haha yeah for sure")
	assert.Contains(t, prompt, "- omw, grabbing coffee first")
	assert.NotContains(t, prompt, "dinner at 8?")
	assert.Contains(t, prompt, "me: yeah 8 works")
	assert.Contains(t, prompt, "Dana: cool, see you there")
}

func TestBuildWindDownPrompt(t *testing.T) {
	prompt := buildWindDownPrompt(promptConversation(), 5)

	assert.Contains(t, prompt, "winds the conversation down")
	assert.Contains(t, prompt, "- haha yeah for sure")
	assert.NotContains(t, prompt, "dinner at 8?")
}

func TestTail(t *testing.T) {
	seq := []int{1, 2, 3, 4}

	if diff := cmp.Diff([]int{3, 4}, tail(seq, 2)); diff != "" {
		t.Errorf("tail mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(seq, tail(seq, 0)); diff != "" {
		t.Errorf("unbounded tail mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(seq, tail(seq, 10)); diff != "" {
		t.Errorf("oversized tail mismatch (-want +got):\n%s", diff)
	}
}
