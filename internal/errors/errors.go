package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind classifies a structured error by where in the ingestion pipeline it
// originated.
type Kind string

const (
	// KindBadInput marks a malformed request: an unparseable upload, an
	// invalid query filter, a missing required field.
	KindBadInput Kind = "bad_input"
	// KindParseFailure marks a line the record assembler could not turn
	// into a record. The line is not stored; batch and upload ingestion
	// count it as failed and continue.
	KindParseFailure Kind = "parse_failure"
	// KindMinerDegraded marks a message the template miner could not
	// cluster and had to fall back on (see internal/miner).
	KindMinerDegraded Kind = "miner_degraded"
	// KindStorageUnavailable marks a failure to read or write the
	// document store.
	KindStorageUnavailable Kind = "storage_unavailable"
	// KindCycleError marks a failed anomaly-detection strategy within an
	// otherwise successful detection cycle.
	KindCycleError Kind = "cycle_error"
)

// StructuredError carries a Kind, a human message, and optional structured
// details, so callers (HTTP handlers, the detection cycle) can branch on
// Kind without string matching.
type StructuredError struct {
	Kind       Kind        `json:"kind"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
	cause      error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// ToJSON renders the error as a JSON string for API responses and audit
// log entries.
func (e *StructuredError) ToJSON() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"kind":"%s","message":"%s"}`, e.Kind, e.Message)
	}
	return string(b)
}

// New creates a structured error of the given kind.
func New(kind Kind, message string) *StructuredError {
	return &StructuredError{Kind: kind, Message: message}
}

// Wrap creates a structured error of the given kind around a lower-level
// cause, preserving it for errors.Is/errors.As.
func Wrap(kind Kind, message string, cause error) *StructuredError {
	return &StructuredError{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured context (a record ID, a field name, a
// strategy name) to the error.
func (e *StructuredError) WithDetails(details interface{}) *StructuredError {
	e.Details = details
	return e
}

// WithSuggestion attaches a recovery hint for API consumers.
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// HTTPStatus maps Kind to the status code the HTTP adapter should return.
func (e *StructuredError) HTTPStatus() int {
	switch e.Kind {
	case KindBadInput:
		return http.StatusBadRequest
	case KindParseFailure, KindMinerDegraded:
		return http.StatusUnprocessableEntity
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	case KindCycleError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Common constructors, one per kind.

// NewBadInput creates a client-facing malformed-request error.
func NewBadInput(message string) *StructuredError {
	return New(KindBadInput, message).
		WithSuggestion("check the request body and try again")
}

// NewParseFailure creates an error describing a line the record assembler
// could not turn into a record. The line is not stored. Lines that merely
// match no registry format are not parse failures: they are stored with
// format_tag "unknown".
func NewParseFailure(reason string) *StructuredError {
	return New(KindParseFailure, reason)
}

// NewMinerDegraded creates an error describing a message the template
// miner could not cluster, wrapping the underlying cause if one exists.
func NewMinerDegraded(cause error) *StructuredError {
	return Wrap(KindMinerDegraded, "template miner fell back to a singleton template", cause).
		WithSuggestion("check miner queue depth and cluster limits")
}

// NewStorageUnavailable creates an error for a failed store read or write.
func NewStorageUnavailable(op string, cause error) *StructuredError {
	return Wrap(KindStorageUnavailable, fmt.Sprintf("storage operation %q failed", op), cause).
		WithSuggestion("retry; if this persists the store may be overloaded")
}

// NewCycleError creates an error for one failed strategy within a
// detection cycle. Callers aggregate these with go.uber.org/multierr
// rather than aborting the cycle.
func NewCycleError(strategy string, cause error) *StructuredError {
	return Wrap(KindCycleError, fmt.Sprintf("anomaly strategy %q failed", strategy), cause).
		WithDetails(map[string]interface{}{"strategy": strategy})
}
