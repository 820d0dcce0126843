// Package approval classifies free-text replies to a takeover offer.
package approval

import "strings"

// Decision is the outcome of classifying an offer reply.
type Decision int

const (
	// DecisionUnclear means the reply matched neither keyword set.
	DecisionUnclear Decision = iota
	// DecisionApprove means the user accepted the offer.
	DecisionApprove
	// DecisionDeny means the user declined the offer.
	DecisionDeny
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionDeny:
		return "deny"
	case DecisionUnclear:
		return "unclear"
	default:
		return "unknown"
	}
}

// The two keyword sets must stay disjoint: no entry of one may be a substring
// of an entry in the other.
var approveKeywords = []string{
	"yes",
	"yeah",
	"yep",
	"sure",
	"ok",
	"okay",
	"go ahead",
	"go for it",
	"take over",
	"do it",
	"sounds good",
	"please",
}

var denyKeywords = []string{
	"no",
	"nah",
	"nope",
	"stop",
	"don't",
	"dont",
	"negative",
	"leave it",
	"cancel",
}

// Classify maps a free-text reply to a decision. Matching is by substring on
// the trimmed, lower-cased text. When both sets match, deny wins: an explicit
// refusal is safety-critical and must beat an accidental affirmative
// substring. Empty input is unclear.
func Classify(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return DecisionUnclear
	}

	if containsAny(normalized, denyKeywords) {
		return DecisionDeny
	}
	if containsAny(normalized, approveKeywords) {
		return DecisionApprove
	}
	return DecisionUnclear
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
