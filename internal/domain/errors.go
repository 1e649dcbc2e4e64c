package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code and message so wrapped copies still compare equal.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeProvider      = "PROVIDER_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrLengthMismatch       = NewDomainError(ErrCodeValidation, "records and vectors must have the same length")
)

// Not found errors
var (
	ErrDocumentNotFound    = NewDomainError(ErrCodeNotFound, "document not found")
	ErrNoRelevantContext   = NewDomainError(ErrCodeNotFound, "no relevant context found")
	ErrCollectionNotFound  = NewDomainError(ErrCodeNotFound, "collection not found")
	ErrArchiveNotAvailable = NewDomainError(ErrCodeNotFound, "original file archive not configured")
)

// Configuration errors
var (
	ErrDimensionMismatch    = NewDomainError(ErrCodeConfiguration, "embedding dimension does not match collection dimension")
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeConfiguration, "invalid chunk configuration")
	ErrInvalidCollection    = NewDomainError(ErrCodeConfiguration, "invalid collection name")
	ErrUnknownVectorBackend = NewDomainError(ErrCodeConfiguration, "unknown vector backend")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// ConfigurationError reports a fatal misconfiguration naming the offending settings.
func ConfigurationError(message string, settings ...string) *DomainError {
	if len(settings) > 0 {
		message = fmt.Sprintf("%s: %v", message, settings)
	}
	return NewDomainError(ErrCodeConfiguration, message)
}

// ProviderError wraps a failure of a remote collaborator (embedding API, vector database, language model).
func ProviderError(provider string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeProvider, provider+" request failed", err)
}

// CodeOf returns the code of the first DomainError in err's chain, or "" when there is none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

func hasCode(err error, code string) bool {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}
