// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package triage

import (
	"context"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// GenerateFunc issues a single bounded model call and returns the raw text
// completion. The classifier uses it for the remote fallback only; wiring a
// real provider (or none) is the caller's choice.
type GenerateFunc func(ctx context.Context, system, user string, maxTokens int) (string, error)

// ambiguousVocab flags input that touches medical or mental-health ground
// without tripping any deterministic rule. Only such input is worth a remote
// classification call.
var ambiguousVocab = regexp.MustCompile(`(?i)(health|medical|pain|dose|dosage|safe(ly)?|risk|feel(ing)?\s+(bad|off|weird|down)|body|hormone|blood|energy\s+crash)`)

// remoteSystemPrompt constrains the remote fallback to a strict JSON schema.
const remoteSystemPrompt = `You are a triage classifier for a health coaching assistant.
Classify the user message into exactly one category:
general_wellness, mental_health_non_crisis, mental_health_crisis, medical_non_urgent, medical_emergency, moderate_risk_protocol, extreme_risk_protocol.
When in doubt between two categories, pick the more severe one.
Respond with only a JSON object: {"category": "<category>", "reason": "<short reason>"}`

// Classifier assigns exactly one Category per message. The deterministic rule
// pass always runs first; the remote fallback is optional and bounded.
type Classifier struct {
	matcher *Matcher

	// remote is nil when no remote fallback is configured.
	remote        GenerateFunc
	remoteTimeout time.Duration

	// minRemoteWords gates the remote call: short messages with no rule hit
	// are not worth a model round trip.
	minRemoteWords int
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithRemoteFallback enables the remote-model fallback for ambiguous input.
// timeout bounds the single remote call (never more than 5s in practice).
func WithRemoteFallback(generate GenerateFunc, timeout time.Duration) ClassifierOption {
	return func(c *Classifier) {
		c.remote = generate
		c.remoteTimeout = timeout
	}
}

// WithRules replaces the default rule table.
func WithRules(rules []*Rule) ClassifierOption {
	return func(c *Classifier) {
		c.matcher = NewMatcherWithRules(rules)
	}
}

// NewClassifier creates a Classifier with the default rule table and no
// remote fallback.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		matcher:        NewMatcher(),
		remoteTimeout:  5 * time.Second,
		minRemoteWords: 12,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps message text to exactly one category. It never fails: when no
// deterministic rule fires and the remote fallback is unavailable, errors, or
// returns an invalid category, the result falls back to the deterministic
// outcome (GENERAL_WELLNESS when nothing fired).
func (c *Classifier) Classify(ctx context.Context, text string) Classification {
	if rule := c.matcher.Match(text); rule != nil {
		return Classification{Category: rule.Category, Reason: rule.Name}
	}

	if c.shouldClassifyRemotely(text) {
		if cls, ok := c.classifyRemotely(ctx, text); ok {
			return cls
		}
	}

	return Classification{Category: CategoryGeneralWellness, Reason: "no rule matched"}
}

// shouldClassifyRemotely reports whether the message warrants a remote call:
// long enough, or touching ambiguous medical/mental-health vocabulary.
func (c *Classifier) shouldClassifyRemotely(text string) bool {
	if c.remote == nil {
		return false
	}
	if len(strings.Fields(text)) >= c.minRemoteWords {
		return true
	}
	return ambiguousVocab.MatchString(text)
}

// classifyRemotely issues the single bounded remote call and validates its
// output. Any failure or unknown category is discarded, not surfaced.
func (c *Classifier) classifyRemotely(ctx context.Context, text string) (Classification, bool) {
	callCtx, cancel := context.WithTimeout(ctx, c.remoteTimeout)
	defer cancel()

	raw, err := c.remote(callCtx, remoteSystemPrompt, text, 128)
	if err != nil {
		log.WithField("error", err).Debug("remote classification failed, using deterministic result")
		return Classification{}, false
	}

	parsed := gjson.Get(extractJSON(raw), "category")
	category, ok := ParseCategory(strings.TrimSpace(parsed.String()))
	if !ok {
		log.WithField("raw", raw).Debug("remote classification returned invalid category")
		return Classification{}, false
	}
	reason := gjson.Get(extractJSON(raw), "reason").String()
	if reason == "" {
		reason = "remote classification"
	}
	return Classification{Category: category, Reason: reason, Remote: true}, true
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
