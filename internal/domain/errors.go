package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a provider dispatch failed.
type ErrorKind string

const (
	ErrorKindNone          ErrorKind = ""
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindRateLimited   ErrorKind = "rate_limited"
	ErrorKindUpstream      ErrorKind = "upstream"
	ErrorKindInvalidInput  ErrorKind = "invalid_input"
	ErrorKindNotApplicable ErrorKind = "not_applicable"
	ErrorKindUnauthorized  ErrorKind = "unauthorized"
	ErrorKindUnknown       ErrorKind = "unknown"
	ErrorKindCanceled      ErrorKind = "canceled"
)

// Transient reports whether a retry may succeed.
func (k ErrorKind) Transient() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindNetwork, ErrorKindRateLimited, ErrorKindUpstream:
		return true
	}
	return false
}

// ProviderError is returned by providers. It never escapes the orchestrator:
// it is folded into a failed EnrichmentOutcome.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Transient() bool { return e.Kind.Transient() }

// NewTransientError builds a retryable provider failure. Kinds that are not
// transient are coerced to network.
func NewTransientError(provider string, kind ErrorKind, err error) *ProviderError {
	if !kind.Transient() {
		kind = ErrorKindNetwork
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// NewPermanentError builds a failure that is never retried. Transient kinds
// are coerced to unknown.
func NewPermanentError(provider string, kind ErrorKind, err error) *ProviderError {
	if kind.Transient() || kind == ErrorKindNone {
		kind = ErrorKindUnknown
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// ReasoningParseError means the reasoning service answered with something
// that is not the structured payload.
type ReasoningParseError struct {
	Reason string
	Err    error
}

func (e *ReasoningParseError) Error() string {
	if e.Err == nil {
		return "reasoning response: " + e.Reason
	}
	return fmt.Sprintf("reasoning response: %s: %v", e.Reason, e.Err)
}

func (e *ReasoningParseError) Unwrap() error { return e.Err }

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

var ErrNotFound = errors.New("not found")
