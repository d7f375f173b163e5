package search

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ria-search/internal/common/config"
	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/models"
)

func TestNormalizeRequest_Valid(t *testing.T) {
	cfg := DefaultConfig()

	req, threshold, err := cfg.normalizeRequest(models.SearchRequest{
		Query:   "  venture capital  ",
		Filters: models.SearchFilters{State: " ca", FundType: "vc", City: " San Francisco "},
	})
	require.NoError(t, err)

	assert.Equal(t, "venture capital", req.Query)
	assert.Equal(t, "CA", req.Filters.State)
	assert.Equal(t, "San Francisco", req.Filters.City)
	assert.Equal(t, models.FundTypeVentureCapital, req.Filters.FundType)
	assert.Equal(t, cfg.DefaultLimit, req.Limit)
	assert.Equal(t, cfg.Threshold, threshold)
	assert.Nil(t, req.Embedding)
}

func TestNormalizeRequest_ThresholdOverride(t *testing.T) {
	_, threshold, err := DefaultConfig().normalizeRequest(models.SearchRequest{
		Filters: models.SearchFilters{Threshold: ptr(0.55)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.55, threshold)
}

func TestNormalizeRequest_Rejects(t *testing.T) {
	cfg := DefaultConfig()
	nanVec := make([]float32, cfg.Dimension)
	nanVec[0] = float32(math.Inf(1))

	tests := []struct {
		name    string
		req     models.SearchRequest
		wantErr error
		field   string
	}{
		{"short embedding", models.SearchRequest{Embedding: []float32{0.1, 0.2}}, ErrEmbeddingDimensionMismatch, ""},
		{"non-finite embedding", models.SearchRequest{Embedding: nanVec}, ErrInvalidFilter, "embedding"},
		{"three letter state", models.SearchRequest{Filters: models.SearchFilters{State: "MOO"}}, ErrInvalidFilter, "state"},
		{"numeric state", models.SearchRequest{Filters: models.SearchFilters{State: "12"}}, ErrInvalidFilter, "state"},
		{"negative aum", models.SearchRequest{Filters: models.SearchFilters{MinAUM: ptr(-1.0)}}, ErrInvalidFilter, "minAum"},
		{"nan aum", models.SearchRequest{Filters: models.SearchFilters{MinAUM: ptr(math.NaN())}}, ErrInvalidFilter, "minAum"},
		{"negative vc activity", models.SearchRequest{Filters: models.SearchFilters{MinVCActivity: ptr(-2)}}, ErrInvalidFilter, "minVcActivity"},
		{"unknown fund type", models.SearchRequest{Filters: models.SearchFilters{FundType: "crypto"}}, ErrInvalidFilter, "fundType"},
		{"threshold too high", models.SearchRequest{Filters: models.SearchFilters{Threshold: ptr(1.5)}}, ErrInvalidFilter, "threshold"},
		{"limit over max", models.SearchRequest{Limit: cfg.MaxLimit + 1}, ErrInvalidFilter, "limit"},
		{"negative limit", models.SearchRequest{Limit: -1}, ErrInvalidFilter, "limit"},
		{"negative offset", models.SearchRequest{Offset: -1}, ErrInvalidFilter, "offset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := cfg.normalizeRequest(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, apperrors.As(err).Metadata["field"])
			}
		})
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.SearchConfig{
		SemanticWeight:  0.7,
		TextWeight:      0.3,
		Threshold:       0.25,
		CandidateWindow: 500,
		MaxLimit:        50,
		SemanticTimeout: 750,
	})

	assert.Equal(t, 0.7, cfg.SemanticWeight)
	assert.Equal(t, 0.3, cfg.TextWeight)
	assert.Equal(t, 0.25, cfg.Threshold)
	assert.Equal(t, 500, cfg.CandidateWindow)
	assert.Equal(t, 50, cfg.MaxLimit)
	assert.Equal(t, 10, cfg.DefaultLimit)
	assert.Equal(t, 750*time.Millisecond, cfg.SemanticTimeout)
	assert.Equal(t, 2*time.Second, cfg.LexicalTimeout)
	assert.Equal(t, models.EmbeddingDimension, cfg.Dimension)
	assert.NoError(t, cfg.validate())
}

func TestConfigValidate(t *testing.T) {
	bad := DefaultConfig()
	bad.TextWeight = -0.1
	assert.Error(t, bad.validate())

	bad = DefaultConfig()
	bad.CandidateWindow = bad.MaxLimit - 1
	assert.Error(t, bad.validate())

	bad = DefaultConfig()
	bad.LexicalTimeout = 0
	assert.Error(t, bad.validate())
}
