package assetio

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a call-level error
type ErrorType string

const (
	ErrorTypeInputValidation       ErrorType = "input_validation"
	ErrorTypeUnsupportedCapability ErrorType = "unsupported_capability"
	ErrorTypeNotInitialized        ErrorType = "not_initialized"
	ErrorTypeConfiguration         ErrorType = "configuration"
	ErrorTypeBackend               ErrorType = "backend"
	ErrorTypeNotImplemented        ErrorType = "not_implemented"
)

// Error is the structured error returned for failures that prevent a whole
// call from proceeding. Per-element failures use BatchElementError instead.
type Error struct {
	Type      ErrorType        `json:"type"`
	Code      string           `json:"code"`
	Message   string           `json:"message"`
	Operation string           `json:"operation,omitempty"`
	Entity    *EntityReference `json:"entity,omitempty"`
	Details   map[string]any   `json:"details,omitempty"`
	Cause     error            `json:"-"`
}

func (e *Error) Error() string {
	if e.Entity != nil {
		return fmt.Sprintf("[%s:%s] entity %s: %s", e.Type, e.Code, e.Entity, e.Message)
	}
	if e.Operation != "" {
		return fmt.Sprintf("[%s:%s] operation %s: %s", e.Type, e.Code, e.Operation, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to an Error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to an Error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithEntity adds entity context to an Error
func (e *Error) WithEntity(ref EntityReference) *Error {
	e.Entity = &ref
	return e
}

// WithOperation names the host-facing operation that failed
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// Error codes
const (
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeNilTraitsData         = "NIL_TRAITS_DATA"
	ErrCodeNilContext            = "NIL_CONTEXT"
	ErrCodeLengthMismatch        = "LENGTH_MISMATCH"
	ErrCodeInvalidAccess         = "INVALID_ACCESS"
	ErrCodeInvalidPageSize       = "INVALID_PAGE_SIZE"
	ErrCodeBatchSizeExceeded     = "BATCH_SIZE_EXCEEDED"
	ErrCodeInvalidEntityRef      = "INVALID_ENTITY_REFERENCE"
	ErrCodeCapabilityMissing     = "CAPABILITY_MISSING"
	ErrCodeNotInitialized        = "NOT_INITIALIZED"
	ErrCodeMissingCapabilities   = "MISSING_REQUIRED_CAPABILITIES"
	ErrCodeInvalidConfig         = "INVALID_CONFIG"
	ErrCodeBackendFailure        = "BACKEND_FAILURE"
	ErrCodeMethodNotImplemented  = "METHOD_NOT_IMPLEMENTED"
	ErrCodeInvalidSettings       = "INVALID_SETTINGS"
	ErrCodeInvalidBackendResults = "INVALID_BACKEND_RESULTS"
)

// ============================================================================
// Error Constructors
// ============================================================================

// NewError creates a new Error
func NewError(errorType ErrorType, code, message string) *Error {
	return &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewInputValidationError creates an error for a malformed call, detected
// before any backend invocation.
func NewInputValidationError(code, message string) *Error {
	return NewError(ErrorTypeInputValidation, code, message)
}

// NewBatchSizeExceededError creates an error for a batch over the configured maximum
func NewBatchSizeExceededError(size, limit int) *Error {
	return NewInputValidationError(ErrCodeBatchSizeExceeded,
		fmt.Sprintf("batch of %d elements exceeds the maximum of %d", size, limit)).
		WithDetail("size", size).
		WithDetail("limit", limit)
}

// NewUnsupportedCapabilityError creates an error for an operation whose
// capability the backend does not advertise.
func NewUnsupportedCapabilityError(capability Capability, operation string) *Error {
	return NewError(ErrorTypeUnsupportedCapability, ErrCodeCapabilityMissing,
		fmt.Sprintf("manager does not support capability %s", capability)).
		WithOperation(operation).
		WithDetail("capability", capability.String())
}

// NewNotInitializedError creates an error for calls made before Initialize
func NewNotInitializedError(operation string) *Error {
	return NewError(ErrorTypeNotInitialized, ErrCodeNotInitialized,
		"manager has not been initialized").WithOperation(operation)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *Error {
	return NewError(ErrorTypeConfiguration, code, message)
}

// NewBackendError wraps an unexpected backend failure that aborts a call
func NewBackendError(operation string, cause error) *Error {
	return NewError(ErrorTypeBackend, ErrCodeBackendFailure, cause.Error()).
		WithOperation(operation).
		WithCause(cause)
}

// NewNotImplementedError reports a backend method the plugin does not provide
func NewNotImplementedError(method string) *Error {
	return NewError(ErrorTypeNotImplemented, ErrCodeMethodNotImplemented,
		fmt.Sprintf("%s is not implemented by this manager", method))
}

// IsErrorType reports whether err is an *Error of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// ============================================================================
// Batch element errors
// ============================================================================

// BatchElementErrorKind classifies a per-element failure
type BatchElementErrorKind string

const (
	KindInvalidEntityReference   BatchElementErrorKind = "invalidEntityReference"
	KindMalformedEntityReference BatchElementErrorKind = "malformedEntityReference"
	KindEntityResolutionError    BatchElementErrorKind = "entityResolutionError"
	KindEntityAccessError        BatchElementErrorKind = "entityAccessError"
	KindInvalidPreflightHint     BatchElementErrorKind = "invalidPreflightHint"
	KindInvalidTraitSet          BatchElementErrorKind = "invalidTraitSet"
	KindEntityNotFound           BatchElementErrorKind = "entityNotFound"
)

// BatchElementError describes the failure of exactly one element of a batch.
// Index is the element's position in the originating batch; backends leave it
// zero and the dispatch engine stamps it.
type BatchElementError struct {
	Index   int                   `json:"index"`
	Kind    BatchElementErrorKind `json:"kind"`
	Message string                `json:"message"`
}

func (e *BatchElementError) Error() string {
	return fmt.Sprintf("[%s] element %d: %s", e.Kind, e.Index, e.Message)
}

// NewBatchElementError creates a per-element error for a backend to return
func NewBatchElementError(kind BatchElementErrorKind, message string) *BatchElementError {
	return &BatchElementError{Kind: kind, Message: message}
}

// NewBatchElementErrorf is NewBatchElementError with a format string
func NewBatchElementErrorf(kind BatchElementErrorKind, format string, args ...any) *BatchElementError {
	return &BatchElementError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsBatchElementError extracts a *BatchElementError from err
func AsBatchElementError(err error) (*BatchElementError, bool) {
	var bee *BatchElementError
	if errors.As(err, &bee) {
		return bee, true
	}
	return nil, false
}
