// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Built-in pattern checks. These run on every generated answer, no network.
var (
	// dosagePattern matches explicit numeric dosage amounts ("500mg", "10 IU").
	dosagePattern = regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(mg|mcg|µg|g|iu|ml|cc)\b`)

	// frequencyPattern matches dosing schedules ("2 tablets per day", "twice daily").
	frequencyPattern = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four)\s*(tablets?|capsules?|pills?|doses?|drops?|times?)\s*(per|a|each)\s*(day|week|hour|night)\b|\b(once|twice|thrice)\s+(daily|a\s+day|per\s+day|weekly)\b`)

	// prescriptivePattern matches diagnostic or prescriptive phrasing.
	prescriptivePattern = regexp.MustCompile(`(?i)\byou\s+(have|are\s+suffering\s+from|should\s+take|need\s+to\s+take|must\s+take|should\s+stop\s+taking)\b|\bi\s+(diagnose|prescribe|recommend\s+taking)\b|\byour\s+diagnosis\b`)

	// disclaimerPattern detects the required clinician-consultation language.
	disclaimerPattern = regexp.MustCompile(`(?i)(consult|talk\s+to|speak\s+with|check\s+with|work\s+with)\s+(a|your)\s+(doctor|physician|clinician|healthcare\s+pro(vider|fessional)|medical\s+professional)`)
)

// ReviewContext is the input to the configurable rule layer. Field names are
// part of the rule condition language.
type ReviewContext struct {
	Category      string `expr:"category"`
	Question      string `expr:"question"`
	Answer        string `expr:"answer"`
	WordCount     int    `expr:"word_count"`
	HasDosage     bool   `expr:"has_dosage"`
	HasFrequency  bool   `expr:"has_frequency"`
	HasDiagnosis  bool   `expr:"has_diagnosis"`
	HasDisclaimer bool   `expr:"has_disclaimer"`
}

// RuleSpec is a configurable review rule: an expr condition over ReviewContext
// and the outcome applied when it evaluates to true.
type RuleSpec struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition"`
	Outcome   string `yaml:"outcome"` // WARN or BLOCK
	Rewrite   bool   `yaml:"rewrite"`
	Reason    string `yaml:"reason"`
}

type compiledRule struct {
	spec    RuleSpec
	program *vm.Program
	outcome Outcome
}

// RuleSet holds compiled configurable rules.
type RuleSet struct {
	rules []compiledRule
}

// CompileRules compiles configurable rule conditions once at load time.
// A rule that fails to compile is rejected, not skipped: a silently dropped
// safety rule is worse than a startup error.
func CompileRules(specs []RuleSpec) (*RuleSet, error) {
	set := &RuleSet{}
	for _, spec := range specs {
		outcome := Outcome(strings.ToUpper(strings.TrimSpace(spec.Outcome)))
		if outcome != OutcomeWarn && outcome != OutcomeBlock {
			return nil, fmt.Errorf("safety rule %q: outcome must be WARN or BLOCK, got %q", spec.Name, spec.Outcome)
		}
		program, err := expr.Compile(spec.Condition, expr.Env(ReviewContext{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("safety rule %q: compile condition: %w", spec.Name, err)
		}
		set.rules = append(set.rules, compiledRule{spec: spec, program: program, outcome: outcome})
	}
	return set, nil
}

// highRiskCategories require a clinician-consultation disclaimer in the answer.
var highRiskCategories = map[string]bool{
	"medical_non_urgent":     true,
	"moderate_risk_protocol": true,
	"extreme_risk_protocol":  true,
}

// localPass runs the built-in checks plus the configurable rules. It returns
// the combined verdict without any network call.
func localPass(set *RuleSet, rctx ReviewContext) Verdict {
	verdict := Verdict{Outcome: OutcomeSafe}

	flag := func(outcome Outcome, rewrite bool, reason string) {
		verdict.Reasons = append(verdict.Reasons, reason)
		if worse(outcome, verdict.Outcome) {
			verdict.Outcome = outcome
		}
		if rewrite {
			verdict.NeedsRewrite = true
		}
	}

	if rctx.HasDosage && rctx.HasFrequency {
		flag(OutcomeBlock, false, "explicit dosage and frequency instructions")
	} else if rctx.HasDosage {
		flag(OutcomeBlock, false, "explicit numeric dosage")
	}
	if rctx.HasDiagnosis {
		flag(OutcomeWarn, true, "diagnostic or prescriptive phrasing")
	}
	if highRiskCategories[rctx.Category] && !rctx.HasDisclaimer {
		flag(OutcomeWarn, true, "missing clinician-consultation disclaimer")
	}

	if set != nil {
		for _, rule := range set.rules {
			matched, err := expr.Run(rule.program, rctx)
			if err != nil {
				// A rule that cannot be evaluated must not silently pass.
				flag(OutcomeBlock, false, fmt.Sprintf("rule %q evaluation failed", rule.spec.Name))
				continue
			}
			if matched.(bool) {
				reason := rule.spec.Reason
				if reason == "" {
					reason = rule.spec.Name
				}
				flag(rule.outcome, rule.spec.Rewrite, reason)
			}
		}
	}

	return verdict
}

// buildContext computes the pattern flags for an answer.
func buildContext(category, question, answer string) ReviewContext {
	return ReviewContext{
		Category:      category,
		Question:      question,
		Answer:        answer,
		WordCount:     len(strings.Fields(answer)),
		HasDosage:     dosagePattern.MatchString(answer),
		HasFrequency:  frequencyPattern.MatchString(answer),
		HasDiagnosis:  prescriptivePattern.MatchString(answer),
		HasDisclaimer: disclaimerPattern.MatchString(answer),
	}
}
