package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_Is(t *testing.T) {
	sentinel := &StandardError{Code: ErrCodeInvalidFilter}

	err := fmt.Errorf("parse: %w", NewInvalidFilterError("minAum", "must be non-negative"))
	assert.True(t, stderrors.Is(err, sentinel))
	assert.False(t, stderrors.Is(err, &StandardError{Code: ErrCodeStorageTimeout}))
}

func TestStandardError_UnwrapCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewDatabaseConnectionFailedError(cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "DATABASE_CONNECTION_FAILED")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAs(t *testing.T) {
	dim := NewEmbeddingDimensionMismatchError(768, 3)
	got := As(fmt.Errorf("wrapped: %w", dim))
	assert.Same(t, dim, got)
	assert.Equal(t, 768, got.Metadata["expected"])
	assert.Equal(t, 3, got.Metadata["actual"])

	unknown := As(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, unknown.Code)
	assert.False(t, unknown.Retryable)
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantRetries int
	}{
		{"storage timeout retries", NewStorageTimeoutError("both paths failed"), 2},
		{"query failure retries", NewQueryExecutionFailedError("firm_profile", stderrors.New("x")), 3},
		{"invalid filter never retries", NewInvalidFilterError("state", "bad"), 0},
		{"dimension mismatch never retries", NewEmbeddingDimensionMismatchError(768, 10), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, string(tt.err.Code), bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)

			vars := bpmn.ToErrorVariables()
			require.Contains(t, vars, "originalErrorCode")
			assert.Equal(t, string(tt.err.Code), vars["errorCode"])
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidFilter))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeEmbeddingDimensionMismatch))
	assert.Equal(t, "STORAGE", GetErrorCategory(ErrCodeStorageTimeout))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeSearchQueryFailed))
	assert.Equal(t, "EMBEDDING", GetErrorCategory(ErrCodeEmbeddingUnavailable))
	assert.Equal(t, "NOT_FOUND", GetErrorCategory(ErrCodeEntityNotFound))
	assert.True(t, IsRetryableErrorCode(ErrCodeStorageTimeout))
	assert.False(t, IsRetryableErrorCode(ErrCodeInvalidFilter))
}
