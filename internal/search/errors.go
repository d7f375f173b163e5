package search

import (
	apperrors "ria-search/internal/common/errors"
)

// Sentinels for errors.Is; matching is by error code.
var (
	ErrInvalidFilter              = &apperrors.StandardError{Code: apperrors.ErrCodeInvalidFilter}
	ErrEmbeddingDimensionMismatch = &apperrors.StandardError{Code: apperrors.ErrCodeEmbeddingDimensionMismatch}
	ErrStorageTimeout             = &apperrors.StandardError{Code: apperrors.ErrCodeStorageTimeout}
)
