package hybridsearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/common/logger"
	"ria-search/internal/models"
	"ria-search/internal/search"
	"ria-search/internal/store/memory"
)

// ==========================
// Test Helper Functions
// ==========================

func ptr[T any](v T) *T { return &v }

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func vec(components ...float32) []float32 {
	v := make([]float32, models.EmbeddingDimension)
	copy(v, components)
	return v
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

type failingSearcher struct{ err error }

func (f failingSearcher) Search(context.Context, models.SearchRequest) (*models.SearchResponse, error) {
	return nil, f.err
}

func createTestEngine(t *testing.T) *search.Engine {
	s := memory.New(models.EmbeddingDimension, createTestLogger(t))
	s.AddFirm(models.Firm{CRD: 250, Name: "Edward Jones", City: "St. Louis", State: "MO", AUM: ptr(5.09e9)})
	s.AddFirm(models.Firm{CRD: 793, Name: "Stifel, Nicolaus & Company", City: "St. Louis", State: "MO", AUM: ptr(54e9)},
		models.Fund{CRD: 793, Name: "Stifel Venture I", FundType: "venture capital"})
	s.AddFirm(models.Firm{CRD: 1001, Name: "Sand Hill Ventures", City: "Menlo Park", State: "CA", AUM: ptr(3e9)},
		models.Fund{CRD: 1001, Name: "SHV I", FundType: "Venture Capital"},
		models.Fund{CRD: 1001, Name: "SHV Growth", FundType: "Private Equity"})
	require.NoError(t, s.PutNarrative(models.Narrative{CRD: 250, Embedding: vec(0, 1)}))
	require.NoError(t, s.PutNarrative(models.Narrative{CRD: 793, Embedding: vec(1, 0.5)}))
	require.NoError(t, s.PutNarrative(models.Narrative{CRD: 1001, Embedding: vec(1, 0.1)}))

	e, err := search.NewEngine(s, search.DefaultConfig(), search.WithLogger(createTestLogger(t)))
	require.NoError(t, err)
	return e
}

func createTestHandler(t *testing.T, searcher Searcher, embedder stubEmbedder) *Handler {
	h, err := NewHandler(&Config{Timeout: 5 * time.Second}, searcher, embedder, nil, createTestLogger(t))
	require.NoError(t, err)
	return h
}

func crds(out *Output) []int64 {
	ids := make([]int64, 0, len(out.SearchResponse.Results))
	for _, r := range out.SearchResponse.Results {
		ids = append(ids, r.CRD)
	}
	return ids
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	tests := []struct {
		name         string
		request      string
		embedder     stubEmbedder
		wantCRDs     []int64
		wantDegraded []string
	}{
		{
			name:     "hybrid with embedder",
			request:  `{"query":"ventures","filters":{"fundType":"venture capital"}}`,
			embedder: stubEmbedder{vec: vec(1, 0.1)},
			wantCRDs: []int64{1001, 793},
		},
		{
			name:     "state filter applies to both paths",
			request:  `{"query":"st louis","filters":{"state":"mo"}}`,
			embedder: stubEmbedder{vec: vec(1)},
			wantCRDs: []int64{793, 250},
		},
		{
			name:         "embedder down falls back to lexical",
			request:      `{"query":"Edward Jones"}`,
			embedder:     stubEmbedder{err: errors.New("503 from provider")},
			wantCRDs:     []int64{250},
			wantDegraded: []string{"semantic:skipped", degradedEmbedder},
		},
		{
			name:     "nothing to retrieve with",
			request:  `{"filters":{"minVcActivity":2}}`,
			wantCRDs: []int64{},
		},
	}

	engine := createTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, engine, tt.embedder)

			out, err := h.Execute(context.Background(), &Input{SearchRequest: []byte(tt.request)})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCRDs, crds(out))
			assert.Equal(t, len(tt.wantCRDs), out.ResultCount)
			assert.Equal(t, tt.wantDegraded, out.SearchResponse.Degraded)
			assert.Equal(t, len(tt.wantDegraded) > 0, out.Degraded)
		})
	}
}

func TestHandler_Execute_Errors(t *testing.T) {
	engine := createTestEngine(t)

	tests := []struct {
		name     string
		searcher Searcher
		request  string
		wantCode apperrors.ErrorCode
	}{
		{"missing request", engine, ``, apperrors.ErrCodeInvalidRequest},
		{"null request", engine, `null`, apperrors.ErrCodeInvalidRequest},
		{"unknown field", engine, `{"text":"jones"}`, apperrors.ErrCodeInvalidRequest},
		{"bad state", engine, `{"query":"jones","filters":{"state":"Missouri"}}`, apperrors.ErrCodeInvalidFilter},
		{"unknown fund type", engine, `{"filters":{"fundType":"crypto"}}`, apperrors.ErrCodeInvalidFilter},
		{"wrong embedding width", engine, `{"embedding":[1,0]}`, apperrors.ErrCodeEmbeddingDimensionMismatch},
		{
			"all paths failed",
			failingSearcher{err: apperrors.NewStorageTimeoutError("2 of 2 retrieval paths failed")},
			`{"query":"jones"}`,
			apperrors.ErrCodeStorageTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, tt.searcher, stubEmbedder{})

			_, err := h.Execute(context.Background(), &Input{SearchRequest: []byte(tt.request)})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.As(err).Code)
		})
	}
}

func TestHandler_Execute_RetryPolicy(t *testing.T) {
	h := createTestHandler(t, failingSearcher{err: apperrors.NewStorageTimeoutError("timeout")}, stubEmbedder{})
	_, err := h.Execute(context.Background(), &Input{SearchRequest: []byte(`{"query":"jones"}`)})
	require.Error(t, err)
	bpmn := apperrors.ConvertToBPMNError(apperrors.As(err))
	assert.Equal(t, 2, bpmn.Retries)

	h = createTestHandler(t, createTestEngine(t), stubEmbedder{})
	_, err = h.Execute(context.Background(), &Input{SearchRequest: []byte(`{"filters":{"state":"XYZ"}}`)})
	require.Error(t, err)
	bpmn = apperrors.ConvertToBPMNError(apperrors.As(err))
	assert.Equal(t, 0, bpmn.Retries)
}
