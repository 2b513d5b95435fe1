// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider defines the adapter boundary for upstream text-generation
// backends. Each adapter executes a single generation request against one
// provider and normalizes provider-specific failures into the structured
// error taxonomy in errors.go.
package provider

import (
	"context"
	"net/http"
	"time"
)

// Turn is one prior conversation turn.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the turn text.
	Content string
}

// Request describes a single generation call. It is immutable: constructed
// per handler invocation, never shared across requests.
type Request struct {
	// Model is the provider-specific model identifier. Empty selects the
	// adapter's configured default.
	Model string

	// System is the system prompt.
	System string

	// Turns is the ordered conversation, ending with the current user message.
	Turns []Turn

	// MaxTokens caps the output length. Zero means provider default.
	MaxTokens int
}

// Fragment is one incremental piece of a streamed completion. A non-nil Err
// terminates the stream.
type Fragment struct {
	Text string
	Err  error
}

// Adapter executes generation requests against one upstream provider.
// Implementations must abort the in-flight network call promptly when the
// context is cancelled.
type Adapter interface {
	// Name identifies the provider ("openai", "anthropic", ...).
	Name() string

	// Generate performs a non-streamed call and returns the complete text.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream performs a streamed call. The returned channel is closed
	// after the final fragment; a Fragment with a non-nil Err ends the stream
	// early. An error return means the stream could not be established.
	GenerateStream(ctx context.Context, req Request) (<-chan Fragment, error)
}

// newHTTPClient returns the shared client shape used by the concrete
// adapters. Per-call deadlines come from the request context; the transport
// timeout here is a hard upper bound against leaked connections.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0, // deadlines come from the request context
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
