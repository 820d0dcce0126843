package takeover

import (
	"fmt"
	"strings"

	"github.com/Veraticus/standin/internal/store"
)

// buildReplyPrompt assembles the generation context for one session turn: the
// counterpart's name, where we are in the bounded exchange, the recent
// exchange, and samples of the user's own writing to imitate.
func buildReplyPrompt(conv store.Conversation, exchangeDepth, sampleDepth, maxTurns int) string {
	var b strings.Builder

	name := conv.CounterpartName
	if name == "" {
		name = fallbackCounterpartName
	}

	fmt.Fprintf(&b, "You are ghostwriting a chat reply to %s on behalf of the person whose messages appear below.\n", name)
	fmt.Fprintf(&b, "This is automated message %d of at most %d; keep the exchange low-key and natural.\n\n", conv.TurnsSentThisSession+1, maxTurns)

	b.WriteString("Samples of how this person writes:\n")
	writeSamples(&b, conv.OwnSamples, sampleDepth)

	b.WriteString("\nRecent conversation, oldest first:\n")
	writeExchange(&b, conv.RecentExchange, exchangeDepth, name)

	b.WriteString("\nWrite exactly one short reply in this person's voice. ")
	b.WriteString("Output only the message text itself: no preamble, no quotes, no explanation.")

	return b.String()
}

// buildWindDownPrompt asks for a graceful exit message using only the user's
// own writing samples, no counterpart context.
func buildWindDownPrompt(conv store.Conversation, sampleDepth int) string {
	var b strings.Builder

	b.WriteString("You are ghostwriting on behalf of the person whose messages appear below.\n")
	b.WriteString("They need to wrap up a chat conversation for now.\n\n")

	b.WriteString("Samples of how this person writes:\n")
	writeSamples(&b, conv.OwnSamples, sampleDepth)

	b.WriteString("\nWrite exactly one short, natural message that winds the conversation down, ")
	b.WriteString("in this person's voice. Output only the message text itself: no preamble, no quotes.")

	return b.String()
}

func writeSamples(b *strings.Builder, samples []store.Sample, depth int) {
	samples = tail(samples, depth)
	if len(samples) == 0 {
		b.WriteString("(no samples available; keep it brief and casual)\n")
		return
	}
	for _, sample := range samples {
		fmt.Fprintf(b, "- %s\n", sample.Text)
	}
}

func writeExchange(b *strings.Builder, exchange []store.Message, depth int, counterpartName string) {
	exchange = tail(exchange, depth)
	if len(exchange) == 0 {
		b.WriteString("(no prior messages)\n")
		return
	}
	for _, msg := range exchange {
		speaker := counterpartName
		if msg.FromSelf {
			speaker = "me"
		}
		fmt.Fprintf(b, "%s: %s\n", speaker, msg.Text)
	}
}

// tail returns the most recent n entries.
func tail[T any](seq []T, n int) []T {
	if n > 0 && len(seq) > n {
		return seq[len(seq)-n:]
	}
	return seq
}
