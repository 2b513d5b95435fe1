// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package triage classifies inbound coaching messages into safety categories
// and provides the pre-approved fixed responses for the most severe ones.
// Classification is deterministic first (ordered pattern table), with an
// optional bounded remote-model fallback for ambiguous input.
package triage

// Category is the safety bucket assigned to an inbound message.
// Exactly one category is assigned per message.
type Category string

const (
	// CategoryGeneralWellness covers everyday coaching questions with no
	// medical or mental-health risk signals.
	CategoryGeneralWellness Category = "general_wellness"

	// CategoryMentalHealthNonCrisis covers mental-health topics that do not
	// indicate an active crisis.
	CategoryMentalHealthNonCrisis Category = "mental_health_non_crisis"

	// CategoryMentalHealthCrisis indicates active self-harm or suicide risk.
	// Terminal: no generation call is ever made for this category.
	CategoryMentalHealthCrisis Category = "mental_health_crisis"

	// CategoryMedicalNonUrgent covers medical questions without emergency signals.
	CategoryMedicalNonUrgent Category = "medical_non_urgent"

	// CategoryMedicalEmergency indicates symptoms requiring immediate care.
	// Terminal: no generation call is ever made for this category.
	CategoryMedicalEmergency Category = "medical_emergency"

	// CategoryModerateRiskProtocol covers biohacking protocols that are risky
	// but answerable with a heavily safety-wrapped response.
	CategoryModerateRiskProtocol Category = "moderate_risk_protocol"

	// CategoryExtremeRiskProtocol covers protocols dangerous enough that only
	// a refusal-style answer is permitted.
	CategoryExtremeRiskProtocol Category = "extreme_risk_protocol"
)

// severityRank orders categories from most to least severe. Higher rank wins
// when ambiguous input could match more than one bucket.
var severityRank = map[Category]int{
	CategoryMentalHealthCrisis:    100,
	CategoryMedicalEmergency:      95,
	CategoryExtremeRiskProtocol:   80,
	CategoryModerateRiskProtocol:  60,
	CategoryMentalHealthNonCrisis: 40,
	CategoryMedicalNonUrgent:      35,
	CategoryGeneralWellness:       0,
}

// Severity returns the precedence rank of the category (higher = more severe).
func (c Category) Severity() int {
	return severityRank[c]
}

// Terminal reports whether the category short-circuits to a fixed response
// with no generation call.
func (c Category) Terminal() bool {
	return c == CategoryMentalHealthCrisis || c == CategoryMedicalEmergency
}

// Valid reports whether c is one of the seven known categories.
func (c Category) Valid() bool {
	_, ok := severityRank[c]
	return ok
}

// ParseCategory maps a string to a known Category. Returns false when the
// value is not one of the seven categories.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	if c.Valid() {
		return c, true
	}
	return "", false
}

// Classification is the result of triaging a single message.
type Classification struct {
	// Category is the assigned safety bucket.
	Category Category

	// Reason is a short human-readable explanation of the assignment
	// (matched rule name or remote-judge rationale).
	Reason string

	// Remote indicates the category came from the remote fallback rather
	// than the deterministic rule pass.
	Remote bool
}
