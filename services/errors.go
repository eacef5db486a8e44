package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeLimit        ErrorType = "limit"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail returns a copy of the error carrying key. Sentinels are never mutated.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Type: e.Type, Message: e.Message, Err: e.Err, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrProfileNotFound        = NewDomainError(ErrorTypeNotFound, "profile not found", nil)
	ErrSubscriptionNotFound   = NewDomainError(ErrorTypeNotFound, "subscription not found", nil)
	ErrBillingAccountNotFound = NewDomainError(ErrorTypeNotFound, "no billing account on file", nil)

	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrContentTooShort = NewDomainError(ErrorTypeValidation, "content is too short", nil)
	ErrInvalidPlan     = NewDomainError(ErrorTypeValidation, "plan must be pro or team", nil)
	ErrFileTooLarge    = NewDomainError(ErrorTypeValidation, "file too large (max 10MB)", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	ErrForbidden = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	ErrSummaryLimitReached    = NewDomainError(ErrorTypeLimit, "AI summary limit reached. Please upgrade to Pro.", nil)
	ErrTranscriptionNotInPlan = NewDomainError(ErrorTypeLimit, "Audio transcription is a Pro feature. Please upgrade.", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)

	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "AI provider unavailable", nil)
)

func errorTypeOf(err error) (ErrorType, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type, true
	}
	return "", false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	t, _ := errorTypeOf(err)
	return t == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	t, _ := errorTypeOf(err)
	return t == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	t, _ := errorTypeOf(err)
	return t == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	t, _ := errorTypeOf(err)
	return t == ErrorTypeForbidden
}

// IsLimitError checks if an error is a plan limit error
func IsLimitError(err error) bool {
	t, _ := errorTypeOf(err)
	return t == ErrorTypeLimit
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	t, _ := errorTypeOf(err)
	return t == ErrorTypeInternal
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	t, _ := errorTypeOf(err)
	return t == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	t, _ := errorTypeOf(err)
	return t
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
