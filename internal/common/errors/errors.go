// Package errors provides the structured error type shared by the HTTP API and
// the Zeebe job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Caller input errors
	ErrCodeInvalidFilter              ErrorCode = "INVALID_FILTER"
	ErrCodeEmbeddingDimensionMismatch ErrorCode = "EMBEDDING_DIMENSION_MISMATCH"
	ErrCodeInvalidRequest             ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidQueryType           ErrorCode = "INVALID_QUERY_TYPE"

	// Backend errors
	ErrCodeStorageTimeout           ErrorCode = "STORAGE_TIMEOUT"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeEmbeddingUnavailable     ErrorCode = "EMBEDDING_UNAVAILABLE"

	ErrCodeEntityNotFound ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the sentinel or backend error the StandardError was built from.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause attaches the underlying error so errors.Is/As can reach it.
func (e *StandardError) WithCause(err error) *StandardError {
	e.cause = err
	return e
}

// WithMetadata adds a key to the error metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidFilterError creates a non-retryable filter validation error.
func NewInvalidFilterError(field, details string) *StandardError {
	return newError(ErrCodeInvalidFilter, "Invalid filter value", details, false).
		WithMetadata("field", field)
}

// NewEmbeddingDimensionMismatchError creates a non-retryable error for a query
// vector of the wrong length.
func NewEmbeddingDimensionMismatchError(expected, actual int) *StandardError {
	return newError(ErrCodeEmbeddingDimensionMismatch, "Query embedding has wrong dimensionality",
		fmt.Sprintf("expected %d, got %d", expected, actual), false).
		WithMetadata("expected", expected).
		WithMetadata("actual", actual)
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false)
}

func NewInvalidQueryTypeError(queryType string) *StandardError {
	return newError(ErrCodeInvalidQueryType, "Unsupported query type",
		fmt.Sprintf("queryType: %s", queryType), false)
}

// NewStorageTimeoutError is returned when every retrieval path the request
// depends on failed or timed out.
func NewStorageTimeoutError(details string) *StandardError {
	return newError(ErrCodeStorageTimeout, "All retrieval paths failed", details, true)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true).
		WithCause(err)
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true).
		WithCause(err)
}

func NewQueryTimeoutError(queryType string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout",
		fmt.Sprintf("queryType: %s", queryType), true)
}

func NewSearchQueryFailedError(backend string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Search backend query error",
		fmt.Sprintf("backend: %s, error: %s", backend, err.Error()), true).
		WithCause(err)
}

func NewEmbeddingUnavailableError(err error) *StandardError {
	return newError(ErrCodeEmbeddingUnavailable, "Embedding model unavailable", err.Error(), true).
		WithCause(err)
}

func NewEntityNotFoundError(crd int64) *StandardError {
	return newError(ErrCodeEntityNotFound, "Firm not found", fmt.Sprintf("crd: %d", crd), false)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false).WithCause(err)
}

// As returns err as a StandardError, wrapping unknown errors as INTERNAL_ERROR.
func As(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// ==========================
// BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchQueryFailed:
		return 3

	case ErrCodeStorageTimeout,
		ErrCodeQueryTimeout,
		ErrCodeEmbeddingUnavailable:
		return 2

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "FILTER") ||
		strings.Contains(codeStr, "INVALID") ||
		strings.Contains(codeStr, "DIMENSION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "DATABASE") ||
		strings.Contains(codeStr, "QUERY") ||
		strings.Contains(codeStr, "STORAGE"):
		return "STORAGE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "EMBEDDING"):
		return "EMBEDDING"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}
