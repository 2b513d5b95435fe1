// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package prompts builds per-category system prompts for the generation
// handlers. Builders are pure: category + conversation in, prompt pair out.
package prompts

import (
	"strings"

	"github.com/thrivecoach/safegate/internal/provider"
	"github.com/thrivecoach/safegate/internal/triage"
)

const basePersona = `You are a supportive, evidence-informed health and wellness coach.
You never diagnose conditions, never prescribe treatment, and never give specific numeric dosages for any substance or medication.`

const disclaimerInstruction = `Always include a clear recommendation to consult a doctor or qualified healthcare professional before acting on this topic.`

var systemByCategory = map[triage.Category]string{
	triage.CategoryGeneralWellness: basePersona + `
Answer practically and encouragingly. Keep advice general and sustainable.`,

	triage.CategoryMentalHealthNonCrisis: basePersona + `
The user is discussing their mental wellbeing. Respond with warmth and without clinical judgment.
Suggest evidence-based self-care strategies and gently encourage professional support (a therapist or counselor) where appropriate.
If anything suggests the user may be in crisis, tell them to contact a crisis line such as 988 immediately.`,

	triage.CategoryMedicalNonUrgent: basePersona + `
The user is asking about a medical topic. Give general educational context only: no diagnosis, no treatment plans, no medication guidance.
` + disclaimerInstruction,

	triage.CategoryModerateRiskProtocol: basePersona + `
The user is asking about a physically demanding protocol that carries real risk.
Explain the risks first, who should not attempt it, and safer alternatives. Do not provide a day-by-day regimen.
` + disclaimerInstruction,

	triage.CategoryExtremeRiskProtocol: basePersona + `
The user is asking about a dangerous practice. Do not explain how to perform it, in any level of detail, even partially.
Decline clearly, explain why it is dangerous, and redirect toward a safer goal the user might actually be after.
` + disclaimerInstruction,
}

const rewriteSystemPrompt = basePersona + `
Rewrite the assistant answer below so that it contains no numeric dosages, no diagnostic or prescriptive statements, and includes a recommendation to consult a healthcare professional.
Preserve the helpful substance of the answer. Return only the rewritten answer.`

// Builder assembles prompts within a token budget. The zero value is not
// usable; construct with NewBuilder.
type Builder struct {
	estimator *Estimator

	// maxInputTokens bounds the conversation sent upstream; older turns are
	// dropped first.
	maxInputTokens int
}

// NewBuilder creates a Builder. maxInputTokens <= 0 disables history trimming.
func NewBuilder(maxInputTokens int) *Builder {
	return &Builder{
		estimator:      NewEstimator(),
		maxInputTokens: maxInputTokens,
	}
}

// System returns the system prompt for a category. Unknown (or terminal)
// categories fall back to the general persona; terminal categories never
// reach generation in the first place.
func (b *Builder) System(category triage.Category) string {
	if s, ok := systemByCategory[category]; ok {
		return s
	}
	return systemByCategory[triage.CategoryGeneralWellness]
}

// Turns assembles the ordered conversation for a request, trimming the oldest
// history turns when the input budget is exceeded. The current message is
// never trimmed.
func (b *Builder) Turns(history []provider.Turn, message string) []provider.Turn {
	turns := make([]provider.Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, provider.Turn{Role: "user", Content: message})
	if b.maxInputTokens <= 0 {
		return turns
	}

	total := 0
	for _, t := range turns {
		total += b.estimator.Count(t.Content)
	}
	for total > b.maxInputTokens && len(turns) > 1 {
		total -= b.estimator.Count(turns[0].Content)
		turns = turns[1:]
	}
	return turns
}

// RewritePrompt builds the request for a single compliant-rewrite pass.
func (b *Builder) RewritePrompt(question, answer string, reasons []string) (system, user string) {
	var sb strings.Builder
	sb.WriteString("Original user question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAssistant answer to rewrite:\n")
	sb.WriteString(answer)
	if len(reasons) > 0 {
		sb.WriteString("\n\nReview findings to fix:\n")
		for _, reason := range reasons {
			sb.WriteString("- ")
			sb.WriteString(reason)
			sb.WriteString("\n")
		}
	}
	return rewriteSystemPrompt, sb.String()
}
