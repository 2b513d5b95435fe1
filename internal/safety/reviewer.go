// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package safety

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/thrivecoach/safegate/internal/triage"
)

// JudgeFunc issues a single bounded model call for the remote judge. The
// wired implementation carries the router's retry discipline but must NOT
// have a fallback provider: the judge fails closed instead of failing over.
type JudgeFunc func(ctx context.Context, system, user string, maxTokens int) (string, error)

const judgeSystemPrompt = `You are a safety reviewer for a health coaching assistant.
Review the assistant's answer to the user's question for: implicit prescriptive medical advice, inappropriate tone for a health context, and unsafe protocol instructions.
Respond with only a JSON object: {"outcome": "SAFE"|"WARN"|"BLOCK", "reasons": ["..."], "needs_rewrite": true|false}`

// Reviewer computes a Verdict for each generated answer. The local pattern
// pass always runs; the remote judge runs only for nuanced cases (local pass
// SAFE on a category that warrants scrutiny).
type Reviewer struct {
	rules        *RuleSet
	judge        JudgeFunc
	judgeTimeout time.Duration
}

// ReviewerOption configures a Reviewer.
type ReviewerOption func(*Reviewer)

// WithJudge enables the remote judge with the given call timeout.
func WithJudge(judge JudgeFunc, timeout time.Duration) ReviewerOption {
	return func(r *Reviewer) {
		r.judge = judge
		r.judgeTimeout = timeout
	}
}

// WithRuleSet installs the configurable rule layer.
func WithRuleSet(set *RuleSet) ReviewerOption {
	return func(r *Reviewer) { r.rules = set }
}

// NewReviewer creates a Reviewer. Without WithJudge, only the local pass runs.
func NewReviewer(opts ...ReviewerOption) *Reviewer {
	r := &Reviewer{judgeTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review computes the verdict for a generated answer. The verdict is BLOCK
// whenever the remote judge is needed but unavailable: repeated judge failure
// yields BLOCK every time, never SAFE.
func (r *Reviewer) Review(ctx context.Context, question, answer string, category triage.Category) Verdict {
	rctx := buildContext(string(category), question, answer)
	verdict := localPass(r.rules, rctx)
	if verdict.Outcome != OutcomeSafe {
		return verdict
	}
	if r.judge == nil || !r.judgeWarranted(category) {
		return verdict
	}
	return r.judgePass(ctx, question, answer)
}

// judgeWarranted limits remote judging to categories where nuance matters;
// general wellness answers that pass the local checks go through directly.
func (r *Reviewer) judgeWarranted(category triage.Category) bool {
	return category != triage.CategoryGeneralWellness
}

// judgePass runs the remote judge and fails closed on any error or
// unparseable output.
func (r *Reviewer) judgePass(ctx context.Context, question, answer string) Verdict {
	callCtx, cancel := context.WithTimeout(ctx, r.judgeTimeout)
	defer cancel()

	input := "User question:\n" + question + "\n\nAssistant answer:\n" + answer
	raw, err := r.judge(callCtx, judgeSystemPrompt, input, 256)
	if err != nil {
		log.WithField("error", err).Warn("safety judge unavailable, blocking answer")
		return Verdict{Outcome: OutcomeBlock, Reasons: []string{"safety judge unavailable"}}
	}

	doc := extractJSON(raw)
	outcome := Outcome(strings.ToUpper(gjson.Get(doc, "outcome").String()))
	if outcome != OutcomeSafe && outcome != OutcomeWarn && outcome != OutcomeBlock {
		log.WithField("raw", truncateForLog(raw)).Warn("safety judge returned invalid outcome, blocking answer")
		return Verdict{Outcome: OutcomeBlock, Reasons: []string{"safety judge returned invalid verdict"}}
	}

	verdict := Verdict{
		Outcome:      outcome,
		NeedsRewrite: gjson.Get(doc, "needs_rewrite").Bool(),
	}
	for _, reason := range gjson.Get(doc, "reasons").Array() {
		verdict.Reasons = append(verdict.Reasons, reason.String())
	}
	return verdict
}

// extractJSON trims model chatter around the JSON object, if any.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func truncateForLog(s string) string {
	if len(s) <= 256 {
		return s
	}
	return s[:256]
}
