// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router orchestrates provider adapters: per-call timeouts, bounded
// retry with exponential backoff and jitter, and a single ordered fallback to
// a secondary provider when the primary is exhausted.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thrivecoach/safegate/internal/provider"
)

// ErrNoProvider indicates the router was built without a primary adapter.
var ErrNoProvider = errors.New("router: no primary provider configured")

// ExhaustedError aggregates the failures of both providers after the primary's
// retries and the single fallback attempt were exhausted.
type ExhaustedError struct {
	Primary  error
	Fallback error
}

func (e *ExhaustedError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("router: primary provider exhausted: %v", e.Primary)
	}
	return fmt.Sprintf("router: all providers exhausted: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *ExhaustedError) Unwrap() error { return e.Primary }

// Result is a completed non-streamed generation.
type Result struct {
	// Text is the full completion.
	Text string

	// Provider is the adapter that produced the text.
	Provider string

	// Attempts is the total number of provider calls made for this request.
	Attempts int
}

// Stream is an established streamed generation.
type Stream struct {
	// Provider is the adapter serving the stream.
	Provider string

	// Attempts is the total number of provider calls made to establish it.
	Attempts int

	// Fragments yields ordered text fragments; closed at end-of-stream.
	Fragments <-chan provider.Fragment
}

// Router executes generation requests with bounded retry and one fallback.
// It is safe for concurrent use; all state is read-only after construction.
type Router struct {
	primary  provider.Adapter
	fallback provider.Adapter

	maxRetries  int
	baseBackoff time.Duration
	timeout     time.Duration

	// sleep is replaceable in tests so backoff does not slow the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Router.
type Option func(*Router)

// WithFallback sets the secondary adapter, attempted exactly once after the
// primary is exhausted.
func WithFallback(adapter provider.Adapter) Option {
	return func(r *Router) { r.fallback = adapter }
}

// WithRetries sets how many times a failed attempt is retried on the same
// provider (in addition to the initial attempt).
func WithRetries(n int) Option {
	return func(r *Router) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithBackoff sets the base backoff delay (doubled per attempt, plus jitter).
func WithBackoff(base time.Duration) Option {
	return func(r *Router) {
		if base > 0 {
			r.baseBackoff = base
		}
	}
}

// WithTimeout sets the per-call deadline applied to every provider attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithSleep replaces the backoff sleeper. Intended for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Router) { r.sleep = sleep }
}

// New creates a Router over a primary adapter. Defaults: 2 retries, 250ms
// base backoff, 30s per-call timeout, no fallback.
func New(primary provider.Adapter, opts ...Option) *Router {
	r := &Router{
		primary:     primary,
		maxRetries:  2,
		baseBackoff: 250 * time.Millisecond,
		timeout:     30 * time.Second,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate runs the request to completion. Policy: primary with bounded
// retries; AUTH aborts immediately; then exactly one fallback sequence on the
// secondary; both exhausted yields a single aggregated error.
func (r *Router) Generate(ctx context.Context, req provider.Request) (*Result, error) {
	if r.primary == nil {
		return nil, ErrNoProvider
	}

	attempts := 0
	text, primaryErr := r.generateWithRetry(ctx, r.primary, req, &attempts)
	if primaryErr == nil {
		return &Result{Text: text, Provider: r.primary.Name(), Attempts: attempts}, nil
	}
	if provider.ClassOf(primaryErr) == provider.ErrClassAuth {
		return nil, primaryErr
	}
	if r.fallback == nil {
		return nil, &ExhaustedError{Primary: primaryErr}
	}

	log.WithFields(log.Fields{
		"primary":  r.primary.Name(),
		"fallback": r.fallback.Name(),
	}).Warn("primary provider exhausted, attempting fallback")

	text, fallbackErr := r.generateWithRetry(ctx, r.fallback, req, &attempts)
	if fallbackErr == nil {
		return &Result{Text: text, Provider: r.fallback.Name(), Attempts: attempts}, nil
	}
	return nil, &ExhaustedError{Primary: primaryErr, Fallback: fallbackErr}
}

// GenerateStream establishes a fragment stream under the same retry and
// fallback policy. Retries apply to establishing the stream, not mid-stream;
// consumer cancellation propagates through ctx to the provider call.
func (r *Router) GenerateStream(ctx context.Context, req provider.Request) (*Stream, error) {
	if r.primary == nil {
		return nil, ErrNoProvider
	}

	attempts := 0
	fragments, primaryErr := r.streamWithRetry(ctx, r.primary, req, &attempts)
	if primaryErr == nil {
		return &Stream{Provider: r.primary.Name(), Attempts: attempts, Fragments: fragments}, nil
	}
	if provider.ClassOf(primaryErr) == provider.ErrClassAuth {
		return nil, primaryErr
	}
	if r.fallback == nil {
		return nil, &ExhaustedError{Primary: primaryErr}
	}

	fragments, fallbackErr := r.streamWithRetry(ctx, r.fallback, req, &attempts)
	if fallbackErr == nil {
		return &Stream{Provider: r.fallback.Name(), Attempts: attempts, Fragments: fragments}, nil
	}
	return nil, &ExhaustedError{Primary: primaryErr, Fallback: fallbackErr}
}

// generateWithRetry runs one provider's attempt sequence: initial attempt plus
// up to maxRetries retries for retryable error classes.
func (r *Router) generateWithRetry(ctx context.Context, adapter provider.Adapter, req provider.Request, attempts *int) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.backoffDelay(attempt - 1)); err != nil {
				return "", lastErr
			}
		}
		*attempts++
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		text, err := adapter.Generate(callCtx, req)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		class := provider.ClassOf(err)
		log.WithFields(log.Fields{
			"provider": adapter.Name(),
			"attempt":  attempt + 1,
			"class":    class,
		}).Debug("generation attempt failed")
		if !class.Retryable() {
			return "", err
		}
	}
	return "", lastErr
}

func (r *Router) streamWithRetry(ctx context.Context, adapter provider.Adapter, req provider.Request, attempts *int) (<-chan provider.Fragment, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.backoffDelay(attempt - 1)); err != nil {
				return nil, lastErr
			}
		}
		*attempts++
		// The stream outlives this call, so the timeout covers the whole
		// delivery, not just the handshake.
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		fragments, err := adapter.GenerateStream(callCtx, req)
		if err == nil {
			return relayUntilClose(callCtx, cancel, fragments), nil
		}
		cancel()
		lastErr = err
		if !provider.ClassOf(err).Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

// relayUntilClose forwards fragments and releases the call context once the
// provider stream ends, whichever way it ends.
func relayUntilClose(ctx context.Context, cancel context.CancelFunc, in <-chan provider.Fragment) <-chan provider.Fragment {
	out := make(chan provider.Fragment)
	go func() {
		defer close(out)
		defer cancel()
		for fragment := range in {
			select {
			case out <- fragment:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// backoffDelay computes base*2^attempt plus uniform jitter in [0, base) so
// concurrent requests do not retry in lockstep.
func (r *Router) backoffDelay(attempt int) time.Duration {
	delay := r.baseBackoff << attempt
	jitter := time.Duration(rand.Int63n(int64(r.baseBackoff)))
	return delay + jitter
}

// MaxTotalBackoff returns the upper bound of the backoff series for the
// configured retry count. Wall-clock retry delay never exceeds this.
func (r *Router) MaxTotalBackoff() time.Duration {
	var total time.Duration
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		total += (r.baseBackoff << attempt) + r.baseBackoff
	}
	return total
}

// sleepCtx blocks for d or until ctx is done, returning ctx.Err() in the
// latter case. Only the request's own goroutine waits.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
