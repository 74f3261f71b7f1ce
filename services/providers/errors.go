package providers

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures
type ErrorKind string

const (
	// KindConfiguration means credentials required by the backend are missing
	KindConfiguration ErrorKind = "configuration"

	// KindTransport covers network failures, timeouts and non-success statuses
	KindTransport ErrorKind = "transport"

	// KindProtocol means the backend answered successfully with a shape we cannot parse
	KindProtocol ErrorKind = "protocol"

	// KindUnsupported means the backend does not offer the requested capability
	KindUnsupported ErrorKind = "unsupported_operation"
)

// Sentinels for errors.Is checks; they match any ProviderError of the same kind.
var (
	ErrConfiguration = &ProviderError{Kind: KindConfiguration, Message: "provider not configured"}
	ErrTransport     = &ProviderError{Kind: KindTransport, Message: "provider transport failure"}
	ErrProtocol      = &ProviderError{Kind: KindProtocol, Message: "unexpected provider response"}
	ErrUnsupported   = &ProviderError{Kind: KindUnsupported, Message: "operation not supported"}
)

// ProviderError represents an error from a provider
type ProviderError struct {
	// Kind is the error category
	Kind ErrorKind

	// Provider that generated the error
	Provider string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code returned by the backend (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s error", e.Kind)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches on the error kind
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewConfigurationError creates an error for missing credentials
func NewConfigurationError(provider, message string) *ProviderError {
	return &ProviderError{Kind: KindConfiguration, Provider: provider, Message: message}
}

// NewTransportError creates an error for a failed or rejected network call
func NewTransportError(provider, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{Kind: KindTransport, Provider: provider, Message: message, StatusCode: statusCode, Cause: cause}
}

// NewProtocolError creates an error for an unparsable success response
func NewProtocolError(provider, message string, cause error) *ProviderError {
	return &ProviderError{Kind: KindProtocol, Provider: provider, Message: message, Cause: cause}
}

// NewUnsupportedError creates an error for a capability the backend lacks
func NewUnsupportedError(provider, operation string) *ProviderError {
	return &ProviderError{Kind: KindUnsupported, Provider: provider, Message: operation + " is not supported"}
}

// KindOf returns the kind of a provider error, or empty string if err is not one
func KindOf(err error) ErrorKind {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return ""
}

// StatusCodeOf returns the backend status code carried by err, or 0
func StatusCodeOf(err error) int {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode
	}
	return 0
}
