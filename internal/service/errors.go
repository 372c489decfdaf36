package service

import (
	"errors"
	"fmt"

	"github.com/hebes/smscrm/internal/adapter/twilio"
)

// ErrorCode classifies a service failure.
type ErrorCode string

const (
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorNotFound      ErrorCode = "NOT_FOUND"
	ErrorConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrorConflict      ErrorCode = "CONFLICT"
	ErrorTransient     ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrorInconsistency ErrorCode = "DATA_INCONSISTENCY"
	ErrorBlocked       ErrorCode = "POLICY_BLOCKED"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

// Error is a classified service failure. ProviderCode carries the remote
// provider's error code when the failure originated there.
type Error struct {
	Code         ErrorCode
	Reason       string
	ProviderCode int
	Err          error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("service: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("service: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the caller may retry the same request later.
func (e *Error) Retryable() bool {
	return e != nil && e.Code == ErrorTransient
}

func newError(code ErrorCode, reason string, err error) *Error {
	e := &Error{Code: code, Reason: reason, Err: err}
	if apiErr, ok := twilio.AsError(err); ok {
		e.ProviderCode = apiErr.Code
	}
	return e
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// classifyProviderError maps a remote failure onto the error taxonomy.
func classifyProviderError(reason string, err error) *Error {
	switch {
	case twilio.IsConfiguration(err):
		return newError(ErrorConfiguration, reason, err)
	case twilio.IsTransient(err):
		return newError(ErrorTransient, reason, err)
	default:
		if _, ok := twilio.AsError(err); ok {
			return newError(ErrorInternal, reason, err)
		}
		// Transport failures without a provider response are worth a retry.
		return newError(ErrorTransient, reason, err)
	}
}

// BindingConflictError reports that a customer binding is held by another
// conversation.
type BindingConflictError struct {
	ConflictingKey string
	Err            error
}

func (e *BindingConflictError) Error() string {
	return fmt.Sprintf("binding already held by conversation %s", e.ConflictingKey)
}

func (e *BindingConflictError) Unwrap() error {
	return e.Err
}
