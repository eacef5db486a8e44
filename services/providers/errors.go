package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderNotFound is returned when a backend name is not registered.
	// It signals caller or operator misuse and is never wrapped in a ProviderError.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderDisabled is returned when a registered backend is explicitly disabled
	ErrProviderDisabled = errors.New("provider disabled")

	// ErrActiveProvider is returned when disabling the backend checkout defaults to
	ErrActiveProvider = errors.New("cannot disable the active provider")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrUnsupported marks a capability the backend does not implement
	ErrUnsupported = errors.New("capability not supported")

	// ErrInvalidSignature marks a webhook payload whose signature did not verify
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Error codes carried by ProviderError
const (
	CodeUnsupported        = "UNSUPPORTED"
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeRequestError       = "REQUEST_ERROR"
	CodeHTTPError          = "HTTP_ERROR"
	CodeVendorError        = "VENDOR_ERROR"
	CodeParseError         = "PARSE_ERROR"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeInvalidPlan        = "INVALID_PLAN"
	CodeUnavailable        = "UNAVAILABLE"
)

// ProviderError is the only error type surfaced across a facade boundary.
// It names the backend that failed and keeps the original failure as Cause.
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the vendor HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// Unsupported reports that provider does not implement operation.
func Unsupported(provider, operation string) *ProviderError {
	return NewProviderError(provider, CodeUnsupported,
		fmt.Sprintf("%s does not support %s", provider, operation), 0, ErrUnsupported)
}

// MissingCredential reports a vendor call attempted without its API key.
func MissingCredential(provider, envKey string) *ProviderError {
	return NewProviderError(provider, CodeMissingCredentials, envKey+" is not set", 0, nil)
}

// Wrap tags err with provider unless it already is a ProviderError.
func Wrap(provider, message string, err error) error {
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return err
	}
	return NewProviderError(provider, CodeRequestError, message, 0, err)
}

// AsProviderError extracts a ProviderError from err
func AsProviderError(err error) (*ProviderError, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}

// IsUnsupported reports whether err marks a missing capability
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsConfigError reports whether err is a backend-selection error rather than a vendor failure
func IsConfigError(err error) bool {
	return errors.Is(err, ErrProviderNotFound) || errors.Is(err, ErrProviderDisabled) || errors.Is(err, ErrActiveProvider)
}
