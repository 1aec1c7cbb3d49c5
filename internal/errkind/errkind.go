// Package errkind defines the error taxonomy shared by every pipeline
// component (spec §7). Components never use catch-all recovery; they
// branch on Kind and wrap the underlying cause in a *PipelineError that
// carries a correlation id across component boundaries.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one tag from the error taxonomy. Components branch on Kind,
// never on the wrapped error's concrete type.
type Kind string

const (
	// Capture-level kinds (§4.2).
	KindTimeout    Kind = "timeout"
	KindDNS        Kind = "dns"
	KindConnection Kind = "connection"
	KindHTTP4xx    Kind = "http_4xx"
	KindHTTP5xx    Kind = "http_5xx"
	KindParse      Kind = "parse"
	KindBlocked    Kind = "blocked"
	KindUnknown    Kind = "unknown"

	// Pipeline/coordinator-level kinds (§7).
	KindStorageUnavailable Kind = "storage_unavailable"
	KindOwnerNotFound      Kind = "owner_not_found"
	KindValidation         Kind = "validation_error"
	KindBudgetExceeded     Kind = "budget_exceeded"
	KindCongested          Kind = "congested"
	KindCancelled          Kind = "cancelled"
	KindLLMUnavailable     Kind = "llm_unavailable"
	KindDuplicate          Kind = "duplicate"
)

// Retryable reports whether the taxonomy classifies kind as transient.
// Transient categories are retried up to the configured attempt count;
// everything else fails fast (§4.2, §7).
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindDNS, KindConnection, KindHTTP5xx, KindStorageUnavailable, KindCongested:
		return true
	default:
		return false
	}
}

// PipelineError is the single error type every component returns for a
// classified failure. CorrelationID is propagated and logged at every
// component boundary (§7).
type PipelineError struct {
	Kind          Kind
	Component     string
	CorrelationID string
	Err           error
}

func (e *PipelineError) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s: %s (kind=%s, correlation=%s): %v", e.Component, e.Kind, e.Kind, e.CorrelationID, e.Err)
	}
	return fmt.Sprintf("%s: kind=%s: %v", e.Component, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// New constructs a *PipelineError.
func New(component string, kind Kind, correlationID string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Component: component, CorrelationID: correlationID, Err: err}
}

// As extracts the Kind from err if it (or something it wraps) is a
// *PipelineError; otherwise returns KindUnknown.
func As(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// ClassifyHTTPStatus maps an HTTP status code to a Kind, per §4.2:
// 4xx fails fast, 5xx is transient.
func ClassifyHTTPStatus(status int) Kind {
	switch {
	case status >= 200 && status < 400:
		return ""
	case status >= 400 && status < 500:
		return KindHTTP4xx
	case status >= 500:
		return KindHTTP5xx
	default:
		return KindUnknown
	}
}
