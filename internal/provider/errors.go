// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorClass is the closed taxonomy of provider failures. Retry and fallback
// decisions inspect only this enum, never raw error text.
type ErrorClass string

const (
	// ErrClassAuth indicates invalid or missing credentials. Fatal, never retried.
	ErrClassAuth ErrorClass = "auth"

	// ErrClassRateLimit indicates the provider throttled the request.
	ErrClassRateLimit ErrorClass = "rate_limit"

	// ErrClassTimeout indicates the call exceeded its deadline.
	ErrClassTimeout ErrorClass = "timeout"

	// ErrClassNoContent indicates the provider returned an empty completion.
	ErrClassNoContent ErrorClass = "no_content"

	// ErrClassTransient indicates a retryable upstream failure (5xx, reset).
	ErrClassTransient ErrorClass = "transient"

	// ErrClassUnknown covers everything else.
	ErrClassUnknown ErrorClass = "unknown"
)

// Retryable reports whether the class permits a retry on the same provider.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrClassRateLimit, ErrClassTimeout, ErrClassNoContent, ErrClassTransient:
		return true
	}
	return false
}

// Error is the structured failure returned at every adapter boundary.
type Error struct {
	// Provider is the adapter name that produced the failure.
	Provider string

	// Class drives the router's retry/fallback decision.
	Class ErrorClass

	// Status is the upstream HTTP status code, when one was received.
	Status int

	// Message is the underlying provider message, for logs only.
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %s", e.Provider, e.Class, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Class, e.Message)
}

// ClassOf extracts the ErrorClass from any error. Non-provider errors map to
// UNKNOWN, except context deadline expiry which maps to TIMEOUT.
func ClassOf(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrClassTimeout
	}
	return ErrClassUnknown
}

// classifyStatus maps an upstream HTTP status code to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrClassAuth
	case status == http.StatusTooManyRequests:
		return ErrClassRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrClassTimeout
	case status >= 500:
		return ErrClassTransient
	default:
		return ErrClassUnknown
	}
}

// classifyTransport maps a transport-level error to an ErrorClass.
func classifyTransport(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrClassTimeout
		}
		return ErrClassTransient
	}
	return ErrClassUnknown
}

// statusError builds a provider Error from an upstream HTTP response.
func statusError(provider string, status int, body []byte) *Error {
	return &Error{
		Provider: provider,
		Class:    classifyStatus(status),
		Status:   status,
		Message:  truncate(string(body), 512),
	}
}

// transportError builds a provider Error from a transport failure.
func transportError(provider string, err error) *Error {
	return &Error{
		Provider: provider,
		Class:    classifyTransport(err),
		Message:  err.Error(),
	}
}

// noContentError marks an empty completion so the router treats it as transient.
func noContentError(provider string) *Error {
	return &Error{
		Provider: provider,
		Class:    ErrClassNoContent,
		Message:  "provider returned an empty completion",
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
