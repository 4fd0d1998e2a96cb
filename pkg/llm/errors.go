// Error types and handling
package llm

import "errors"

// ErrorType classifies an Error so callers can tell setup defects apart
// from provider failures.
type ErrorType string

const (
	// ErrTypeConfiguration marks a fatal setup defect, e.g. invoking chat on
	// an instance with neither a chat template nor a native chat transport.
	ErrTypeConfiguration ErrorType = "configuration_error"
	// ErrTypeTransport marks a network or provider failure. These are logged
	// and propagated verbatim; this layer never retries them.
	ErrTypeTransport ErrorType = "transport_error"
	// ErrTypeValidation marks invalid caller input.
	ErrTypeValidation ErrorType = "validation_error"
)

// Error is the standardized error for the llm package
type Error struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Type       ErrorType `json:"type"`
	StatusCode int       `json:"status_code,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewConfigurationError creates a fatal configuration Error
func NewConfigurationError(code, message string) *Error {
	return &Error{Code: code, Message: message, Type: ErrTypeConfiguration}
}

// NewValidationError creates a validation Error
func NewValidationError(code, message string) *Error {
	return &Error{Code: code, Message: message, Type: ErrTypeValidation}
}

// NewTransportError creates a transport Error
func NewTransportError(code, message string, statusCode int) *Error {
	return &Error{Code: code, Message: message, Type: ErrTypeTransport, StatusCode: statusCode}
}

// AsTransportError coerces an arbitrary error into *Error, wrapping unknown
// errors as transport failures so provider SDK errors surface uniformly.
func AsTransportError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: "transport_failure", Message: err.Error(), Type: ErrTypeTransport}
}

// IsConfigurationError reports whether err is a fatal configuration Error
func IsConfigurationError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrTypeConfiguration
}

// IsTransportError reports whether err is a propagated transport Error
func IsTransportError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrTypeTransport
}
