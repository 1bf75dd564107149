// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// External provider errors
	ErrTransport      = errors.New("transport error")
	ErrUpstreamFormat = errors.New("unexpected upstream response format")
	ErrRateLimited    = errors.New("rate limited")

	// Configuration errors
	ErrConfig          = errors.New("configuration error")
	ErrInvalidDuration = errors.New("invalid duration string")

	// Data errors
	ErrDataIntegrity = errors.New("data integrity error")
	ErrNotFound      = errors.New("entity not found")
)

// DomainError represents a domain-specific error with context. It carries
// enough detail (operation, target, upstream message) for the presentation
// layer to render a useful message.
type DomainError struct {
	Domain  string // e.g. "srcom", "cm", "definition"
	Op      string // operation that failed, e.g. "FetchLeaderboard"
	Kind    error  // base error type for errors.Is() checking
	Message string // human-readable message
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// IsTransport checks if the error came from the network/HTTP layer.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsUpstreamFormat checks if the error is a provider response shape mismatch.
func IsUpstreamFormat(err error) bool {
	return errors.Is(err, ErrUpstreamFormat)
}

// IsConfig checks if the error is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrInvalidDuration)
}

// IsDataIntegrity checks if the error is a stored-data integrity error.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}
