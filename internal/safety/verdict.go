// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package safety reviews generated answers before they reach the user. A fast
// local pattern pass runs first and can downgrade on its own; a remote judge
// handles nuanced cases and fails closed: if the judge call fails, the
// verdict is BLOCK, never SAFE.
package safety

// Outcome is the review result for a generated answer.
type Outcome string

const (
	// OutcomeSafe allows the answer through unchanged.
	OutcomeSafe Outcome = "SAFE"

	// OutcomeWarn flags the answer; a single rewrite may be attempted when
	// NeedsRewrite is set.
	OutcomeWarn Outcome = "WARN"

	// OutcomeBlock rejects the answer; the caller substitutes a compliant
	// fallback message.
	OutcomeBlock Outcome = "BLOCK"
)

// Verdict is computed exactly once per generated answer.
type Verdict struct {
	// Outcome is the overall review result.
	Outcome Outcome

	// Reasons lists, in order, every check that flagged the answer.
	Reasons []string

	// NeedsRewrite indicates a compliant rewrite should be attempted.
	NeedsRewrite bool
}

// worse reports whether a is a more severe outcome than b.
func worse(a, b Outcome) bool {
	return rank(a) > rank(b)
}

func rank(o Outcome) int {
	switch o {
	case OutcomeBlock:
		return 2
	case OutcomeWarn:
		return 1
	default:
		return 0
	}
}
