package takeover

import "strings"

// quotePairs are the wrapping quote styles stripped from generated output, one
// layer only.
var quotePairs = [][2]string{
	{`"`, `"`},
	{"'", "'"},
	{"“", "”"},
	{"‘", "’"},
}

// metaPrefixes are boilerplate lead-ins the generator sometimes emits despite
// instructions. Each is tried once, in order, case-insensitively.
var metaPrefixes = []string{
	"here's my response:",
	"here is my response:",
	"here's what i'd say:",
	"here is what i would say:",
	"my response:",
	"response:",
	"reply:",
	"message:",
}

// Sanitize normalizes raw generator output into sendable message text. The
// generator is not trusted to return clean output: a single layer of wrapping
// quotes is removed, known meta-prefixes are stripped, and whitespace is
// trimmed. An empty result means the output was degenerate and must not be
// sent.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)

	for _, pair := range quotePairs {
		if len(text) > len(pair[0])+len(pair[1]) &&
			strings.HasPrefix(text, pair[0]) && strings.HasSuffix(text, pair[1]) {
			text = strings.TrimSpace(text[len(pair[0]) : len(text)-len(pair[1])])
			break
		}
	}

	for _, prefix := range metaPrefixes {
		if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
			text = strings.TrimSpace(text[len(prefix):])
		}
	}

	return strings.TrimSpace(text)
}
