// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gateway composes triage, routing, and safety review into the
// end-to-end message pipeline. It is the only component the chat endpoint
// talks to, and the single place that logs category, provider, retry count,
// and verdict.
package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/thrivecoach/safegate/internal/prompts"
	"github.com/thrivecoach/safegate/internal/provider"
	"github.com/thrivecoach/safegate/internal/router"
	"github.com/thrivecoach/safegate/internal/safety"
	"github.com/thrivecoach/safegate/internal/tools"
	"github.com/thrivecoach/safegate/internal/triage"
)

// BlockedMessage is the generic compliant fallback substituted when review
// blocks a generated answer.
const BlockedMessage = `I wasn't able to give you a specific answer to that one. For anything involving medications, dosages, or medical decisions, the safest move is to talk it through with your doctor or a qualified healthcare professional — they can tailor advice to your situation in a way I can't.

Is there something more general I can help you with in the meantime?`

// UnavailableMessage is the calm fallback when every provider is exhausted.
const UnavailableMessage = `I'm having trouble generating a response right now. Please give it another try in a moment.`

// Reply is the final outcome of handling one message.
type Reply struct {
	// Text is the final, reviewed (or fixed) response text.
	Text string

	// Category is the triage result.
	Category triage.Category

	// Fixed indicates the text came from the fixed-response store.
	Fixed bool

	// Provider is the adapter that produced the text (empty for fixed).
	Provider string

	// Attempts is the total provider calls made (0 for fixed).
	Attempts int

	// Verdict is the review outcome (SAFE for fixed responses by definition).
	Verdict safety.Outcome

	// Rewritten indicates a compliant rewrite replaced the original answer.
	Rewritten bool
}

// Event is one element of a streamed reply: zero or more token fragments
// followed by exactly one terminal reply.
type Event struct {
	// Type is "token" for a fragment, "reply" for the terminal event.
	Type string

	// Value is the fragment text (token events only).
	Value string

	// Reply is the final outcome (reply events only).
	Reply *Reply
}

// Gateway wires the pipeline together. Construct once at process start; safe
// for concurrent use.
type Gateway struct {
	classifier *triage.Classifier
	router     *router.Router
	reviewer   *safety.Reviewer
	prompts    *prompts.Builder
	toolset    *tools.Toolset

	// budgetFor maps a category to its max output tokens.
	budgetFor func(triage.Category) int
}

// New creates a Gateway. budgetFor must not be nil.
func New(classifier *triage.Classifier, r *router.Router, reviewer *safety.Reviewer, builder *prompts.Builder, budgetFor func(triage.Category) int) *Gateway {
	g := &Gateway{
		classifier: classifier,
		router:     r,
		reviewer:   reviewer,
		prompts:    builder,
		budgetFor:  budgetFor,
	}
	g.toolset = tools.NewToolset(g.generateForTools)
	return g
}

// Tools returns the structured content toolset backed by this gateway's
// router, for the general coaching surface.
func (g *Gateway) Tools() *tools.Toolset {
	return g.toolset
}

// Handle processes one message to completion and returns the final reply.
// Provider exhaustion and auth failures are returned as errors; everything
// else resolves to a Reply (fixed, reviewed, rewritten, or blocked-fallback).
func (g *Gateway) Handle(ctx context.Context, message string, history []provider.Turn) (*Reply, error) {
	logger := g.requestLogger()

	cls := g.classifier.Classify(ctx, message)
	logger = logger.WithField("category", cls.Category)
	logger.WithField("reason", cls.Reason).Info("message classified")

	if fixed, ok := triage.ResponseFor(cls.Category); ok {
		logger.Info("fixed response served, no generation")
		return &Reply{Text: fixed, Category: cls.Category, Fixed: true, Verdict: safety.OutcomeSafe}, nil
	}

	req := g.buildRequest(cls.Category, message, history)
	result, err := g.router.Generate(ctx, req)
	if err != nil {
		logger.WithField("error", err).Error("generation failed")
		return nil, err
	}

	reply := g.reviewAndFinalize(ctx, logger, cls.Category, message, result)
	return reply, nil
}

// HandleStream processes one message with streamed delivery. Token events are
// forwarded as fragments arrive (for streamable categories); the terminal
// reply event always carries the post-review text, which replaces the
// streamed fragments whenever review rejects them.
func (g *Gateway) HandleStream(ctx context.Context, message string, history []provider.Turn) (<-chan Event, error) {
	logger := g.requestLogger()

	cls := g.classifier.Classify(ctx, message)
	logger = logger.WithField("category", cls.Category)
	logger.WithField("reason", cls.Reason).Info("message classified")

	if fixed, ok := triage.ResponseFor(cls.Category); ok {
		logger.Info("fixed response served, no generation")
		out := make(chan Event, 1)
		out <- Event{Type: "reply", Reply: &Reply{Text: fixed, Category: cls.Category, Fixed: true, Verdict: safety.OutcomeSafe}}
		close(out)
		return out, nil
	}

	strategy := strategyFor(cls.Category)
	req := g.buildRequest(cls.Category, message, history)
	stream, err := g.router.GenerateStream(ctx, req)
	if err != nil {
		logger.WithField("error", err).Error("stream establishment failed")
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		var sb strings.Builder
		for fragment := range stream.Fragments {
			if fragment.Err != nil {
				logger.WithField("error", fragment.Err).Error("stream aborted mid-delivery")
				g.emit(ctx, out, Event{Type: "reply", Reply: &Reply{
					Text:     UnavailableMessage,
					Category: cls.Category,
					Provider: stream.Provider,
					Attempts: stream.Attempts,
					Verdict:  safety.OutcomeBlock,
				}})
				return
			}
			sb.WriteString(fragment.Text)
			if strategy.streamable {
				if !g.emit(ctx, out, Event{Type: "token", Value: fragment.Text}) {
					return
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		result := &router.Result{Text: sb.String(), Provider: stream.Provider, Attempts: stream.Attempts}
		reply := g.reviewAndFinalize(ctx, logger, cls.Category, message, result)
		g.emit(ctx, out, Event{Type: "reply", Reply: reply})
	}()
	return out, nil
}

// emit sends an event unless the consumer has gone away.
func (g *Gateway) emit(ctx context.Context, out chan<- Event, event Event) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildRequest assembles the provider request for a category.
func (g *Gateway) buildRequest(category triage.Category, message string, history []provider.Turn) provider.Request {
	return provider.Request{
		System:    g.prompts.System(category),
		Turns:     g.prompts.Turns(history, message),
		MaxTokens: g.budgetFor(category),
	}
}

// reviewAndFinalize runs the safety review, attempts at most one compliant
// rewrite, and substitutes the blocked fallback when necessary.
func (g *Gateway) reviewAndFinalize(ctx context.Context, logger *log.Entry, category triage.Category, question string, result *router.Result) *Reply {
	verdict := g.reviewer.Review(ctx, question, result.Text, category)
	logger = logger.WithFields(log.Fields{
		"provider": result.Provider,
		"attempts": result.Attempts,
	})
	logger.WithField("verdict", verdict.Outcome).Info("answer reviewed")

	reply := &Reply{
		Text:     result.Text,
		Category: category,
		Provider: result.Provider,
		Attempts: result.Attempts,
		Verdict:  verdict.Outcome,
	}

	switch verdict.Outcome {
	case safety.OutcomeSafe:
		return reply
	case safety.OutcomeWarn:
		if !verdict.NeedsRewrite {
			return reply
		}
		rewritten, ok := g.rewrite(ctx, logger, category, question, result.Text, verdict.Reasons)
		if !ok {
			reply.Text = BlockedMessage
			reply.Verdict = safety.OutcomeBlock
			return reply
		}
		reply.Text = rewritten
		reply.Rewritten = true
		return reply
	default: // BLOCK
		reply.Text = BlockedMessage
		return reply
	}
}

// rewrite attempts the single compliant rewrite pass. The rewrite must itself
// pass review; anything less is treated as BLOCK by the caller.
func (g *Gateway) rewrite(ctx context.Context, logger *log.Entry, category triage.Category, question, answer string, reasons []string) (string, bool) {
	system, user := g.prompts.RewritePrompt(question, answer, reasons)
	req := provider.Request{
		System:    system,
		Turns:     []provider.Turn{{Role: "user", Content: user}},
		MaxTokens: g.budgetFor(category),
	}
	result, err := g.router.Generate(ctx, req)
	if err != nil {
		logger.WithField("error", err).Warn("rewrite generation failed")
		return "", false
	}
	verdict := g.reviewer.Review(ctx, question, result.Text, category)
	logger.WithField("verdict", verdict.Outcome).Info("rewrite reviewed")
	if verdict.Outcome != safety.OutcomeSafe && !(verdict.Outcome == safety.OutcomeWarn && !verdict.NeedsRewrite) {
		return "", false
	}
	return result.Text, true
}

// generateForTools adapts the router for the structured tool layer.
func (g *Gateway) generateForTools(ctx context.Context, system, user string, maxTokens int) (string, error) {
	result, err := g.router.Generate(ctx, provider.Request{
		System:    system,
		Turns:     []provider.Turn{{Role: "user", Content: user}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// requestLogger attaches a fresh request ID for correlated log lines.
func (g *Gateway) requestLogger() *log.Entry {
	return log.WithField("request_id", uuid.NewString()[:8])
}
