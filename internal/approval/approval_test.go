package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/standin/internal/approval"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want approval.Decision
	}{
		{"yes", approval.DecisionApprove},
		{"Yes please", approval.DecisionApprove},
		{"yes take over", approval.DecisionApprove},
		{"  SURE, go ahead  ", approval.DecisionApprove},
		{"ok do it", approval.DecisionApprove},
		{"sounds good", approval.DecisionApprove},

		{"no", approval.DecisionDeny},
		{"nah not now", approval.DecisionDeny},
		{"Nope", approval.DecisionDeny},
		{"stop", approval.DecisionDeny},
		{"leave it", approval.DecisionDeny},
		{"don't bother", approval.DecisionDeny},

		{"", approval.DecisionUnclear},
		{"   ", approval.DecisionUnclear},
		{"hmm let me think", approval.DecisionUnclear},
		{"what is this about?", approval.DecisionUnclear},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, approval.Classify(tc.text), "text %q", tc.text)
		})
	}
}

func TestDenyWinsTies(t *testing.T) {
	// P5: an explicit refusal beats an accidental affirmative substring.
	cases := []string{
		"yes... actually no",
		"ok wait, stop",
		"sure but not right now, cancel that",
	}

	for _, text := range cases {
		assert.Equal(t, approval.DecisionDeny, approval.Classify(text), "text %q", text)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	for range 3 {
		assert.Equal(t, approval.DecisionApprove, approval.Classify("take over for me"))
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "approve", approval.DecisionApprove.String())
	assert.Equal(t, "deny", approval.DecisionDeny.String())
	assert.Equal(t, "unclear", approval.DecisionUnclear.String())
}
