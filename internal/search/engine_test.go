package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ria-search/internal/common/logger"
	"ria-search/internal/models"
	"ria-search/internal/store/memory"
)

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func vec(components ...float32) []float32 {
	v := make([]float32, models.EmbeddingDimension)
	copy(v, components)
	return v
}

// fakeStore lets each path be scripted independently.
type fakeStore struct {
	vector     func(ctx context.Context) ([]models.Candidate, error)
	text       func(ctx context.Context) ([]models.Candidate, error)
	attributes func(ctx context.Context, crds []int64) (map[int64]models.Firm, error)

	vectorCalls atomic.Int32
	textCalls   atomic.Int32
	lastFilters atomic.Value
	lastLimit   atomic.Int32
}

func (f *fakeStore) VectorSearch(ctx context.Context, _ []float32, _ float64, filters models.SearchFilters, limit int) ([]models.Candidate, error) {
	f.vectorCalls.Add(1)
	f.lastFilters.Store(filters)
	f.lastLimit.Store(int32(limit))
	if f.vector == nil {
		return nil, nil
	}
	return f.vector(ctx)
}

func (f *fakeStore) TextSearch(ctx context.Context, _ string, filters models.SearchFilters, limit int) ([]models.Candidate, error) {
	f.textCalls.Add(1)
	f.lastFilters.Store(filters)
	f.lastLimit.Store(int32(limit))
	if f.text == nil {
		return nil, nil
	}
	return f.text(ctx)
}

func (f *fakeStore) AttributeLookup(ctx context.Context, crds []int64) (map[int64]models.Firm, error) {
	if f.attributes == nil {
		return map[int64]models.Firm{}, nil
	}
	return f.attributes(ctx, crds)
}

func returns(c ...models.Candidate) func(context.Context) ([]models.Candidate, error) {
	return func(context.Context) ([]models.Candidate, error) { return c, nil }
}

func fails(err error) func(context.Context) ([]models.Candidate, error) {
	return func(context.Context) ([]models.Candidate, error) { return nil, err }
}

func blocks(ctx context.Context) ([]models.Candidate, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestEngine(t *testing.T, store Store, mutate ...func(*Config)) *Engine {
	cfg := DefaultConfig()
	cfg.SemanticTimeout = 50 * time.Millisecond
	cfg.LexicalTimeout = 50 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := NewEngine(store, cfg, WithLogger(createTestLogger(t)))
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrStoreRequired)

	cfg := DefaultConfig()
	cfg.Dimension = 0
	_, err = NewEngine(&fakeStore{}, cfg)
	assert.Error(t, err)
}

func TestSearch_NoQueryNoEmbedding(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store)

	resp, err := e.Search(context.Background(), models.SearchRequest{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, int32(0), store.vectorCalls.Load())
	assert.Equal(t, int32(0), store.textCalls.Load())
}

func TestSearch_ValidationPrecedesStorage(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store)

	_, err := e.Search(context.Background(), models.SearchRequest{Query: "x", Embedding: []float32{1, 2}})
	assert.ErrorIs(t, err, ErrEmbeddingDimensionMismatch)

	_, err = e.Search(context.Background(), models.SearchRequest{Query: "x", Filters: models.SearchFilters{State: "Missouri"}})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	assert.Equal(t, int32(0), store.vectorCalls.Load()+store.textCalls.Load())
}

func TestSearch_SkipsMissingInputs(t *testing.T) {
	t.Run("lexical only", func(t *testing.T) {
		store := &fakeStore{text: returns(models.Candidate{CRD: 1, Score: 0.4})}
		resp, err := newTestEngine(t, store).Search(context.Background(), models.SearchRequest{Query: "jones"})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.InDelta(t, 1.0, resp.Results[0].CombinedScore, 1e-12)
		assert.Equal(t, []string{"semantic:skipped"}, resp.Degraded)
		assert.Equal(t, int32(0), store.vectorCalls.Load())
	})

	t.Run("semantic only", func(t *testing.T) {
		store := &fakeStore{vector: returns(models.Candidate{CRD: 1, Score: 0.9})}
		resp, err := newTestEngine(t, store).Search(context.Background(), models.SearchRequest{Embedding: vec(1)})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.InDelta(t, 1.0, resp.Results[0].CombinedScore, 1e-12)
		assert.Equal(t, []string{"lexical:skipped"}, resp.Degraded)
		assert.Equal(t, int32(0), store.textCalls.Load())
	})
}

func TestSearch_FiltersReachStore(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store)

	_, err := e.Search(context.Background(), models.SearchRequest{Query: "x", Filters: models.SearchFilters{State: "mo", FundType: "pe"}})
	require.NoError(t, err)

	got := store.lastFilters.Load().(models.SearchFilters)
	assert.Equal(t, "MO", got.State)
	assert.Equal(t, models.FundTypePrivateEquity, got.FundType)
}

func TestSearch_Degradation(t *testing.T) {
	tests := []struct {
		name         string
		vector       func(context.Context) ([]models.Candidate, error)
		text         func(context.Context) ([]models.Candidate, error)
		wantErr      error
		wantCRDs     []int64
		wantDegraded []string
	}{
		{
			name:         "semantic error falls back to lexical",
			vector:       fails(errors.New("pgvector: index corrupt")),
			text:         returns(models.Candidate{CRD: 2, Score: 1}),
			wantCRDs:     []int64{2},
			wantDegraded: []string{"semantic:error"},
		},
		{
			name:         "lexical timeout falls back to semantic",
			vector:       returns(models.Candidate{CRD: 1, Score: 0.7}),
			text:         blocks,
			wantCRDs:     []int64{1},
			wantDegraded: []string{"lexical:timeout"},
		},
		{
			name:    "both paths failing is a storage timeout",
			vector:  blocks,
			text:    fails(errors.New("connection reset")),
			wantErr: ErrStorageTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, &fakeStore{vector: tt.vector, text: tt.text})

			resp, err := e.Search(context.Background(), models.SearchRequest{Query: "jones", Embedding: vec(1)})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCRDs, crds(resp.Results))
			assert.Equal(t, tt.wantDegraded, resp.Degraded)
		})
	}
}

func TestSearch_SinglePathFailureWhenOnlyPathIsStorageTimeout(t *testing.T) {
	e := newTestEngine(t, &fakeStore{text: fails(errors.New("down"))})

	_, err := e.Search(context.Background(), models.SearchRequest{Query: "jones"})
	assert.ErrorIs(t, err, ErrStorageTimeout)
}

func TestSearch_CallerCancellation(t *testing.T) {
	e := newTestEngine(t, &fakeStore{vector: blocks, text: blocks}, func(c *Config) {
		c.SemanticTimeout = time.Minute
		c.LexicalTimeout = time.Minute
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := e.Search(ctx, models.SearchRequest{Query: "jones", Embedding: vec(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_Hydration(t *testing.T) {
	store := &fakeStore{
		text: returns(models.Candidate{CRD: 250, Score: 1}, models.Candidate{CRD: 404, Score: 0.5}),
		attributes: func(_ context.Context, crds []int64) (map[int64]models.Firm, error) {
			assert.ElementsMatch(t, []int64{250, 404}, crds)
			return map[int64]models.Firm{250: {CRD: 250, Name: "Edward Jones", AUM: ptr(5.09e9)}}, nil
		},
	}

	resp, err := newTestEngine(t, store).Search(context.Background(), models.SearchRequest{Query: "jones"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	require.NotNil(t, resp.Results[0].Firm)
	assert.Equal(t, "Edward Jones", resp.Results[0].Firm.Name)
	assert.Equal(t, 5.09e9, *resp.Results[0].AUM)
	assert.Nil(t, resp.Results[1].Firm)
}

func TestSearch_HydrationFailureDegrades(t *testing.T) {
	store := &fakeStore{
		text: returns(models.Candidate{CRD: 1, Score: 1}),
		attributes: func(context.Context, []int64) (map[int64]models.Firm, error) {
			return nil, errors.New("lookup failed")
		},
	}

	resp, err := newTestEngine(t, store).Search(context.Background(), models.SearchRequest{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, crds(resp.Results))
	assert.Contains(t, resp.Degraded, "attributes:error")
}

// seededStore holds two St. Louis broker-dealers and two California VC firms.
func seededStore(t *testing.T) *memory.Store {
	s := memory.New(models.EmbeddingDimension, createTestLogger(t))
	s.AddFirm(models.Firm{CRD: 250, Name: "Edward Jones", City: "St. Louis", State: "MO", AUM: ptr(5.09e9)})
	s.AddFirm(models.Firm{CRD: 793, Name: "Stifel, Nicolaus & Company", City: "St. Louis", State: "MO", AUM: ptr(54e9)},
		models.Fund{FundType: models.FundTypePrivateEquity})
	s.AddFirm(models.Firm{CRD: 1001, Name: "Sand Hill Ventures", City: "Menlo Park", State: "CA", AUM: ptr(3e9)},
		models.Fund{FundType: models.FundTypeVentureCapital}, models.Fund{FundType: models.FundTypeVentureCapital})
	s.AddFirm(models.Firm{CRD: 1002, Name: "Bay Capital Partners", City: "San Francisco", State: "CA", AUM: ptr(1e9)},
		models.Fund{FundType: models.FundTypeVentureCapital})

	require.NoError(t, s.PutNarrative(models.Narrative{CRD: 250, Embedding: vec(0.9, 0.1)}))
	require.NoError(t, s.PutNarrative(models.Narrative{CRD: 793, Embedding: vec(0.8, 0.2)}))
	require.NoError(t, s.PutNarrative(models.Narrative{CRD: 1001, Embedding: vec(1, 0.05)}))
	require.NoError(t, s.PutNarrative(models.Narrative{CRD: 1002, Embedding: vec(0.95, 0.1)}))
	return s
}

func TestSearch_StateFilterIsHonoredForEveryResult(t *testing.T) {
	e := newTestEngine(t, seededStore(t))

	for _, state := range []string{"CA", "MO"} {
		t.Run(state, func(t *testing.T) {
			resp, err := e.Search(context.Background(), models.SearchRequest{
				Query:     "st louis ventures capital",
				Embedding: vec(1),
				Filters:   models.SearchFilters{State: state},
			})
			require.NoError(t, err)
			require.Len(t, resp.Results, 2)
			for _, r := range resp.Results {
				require.NotNil(t, r.Firm)
				assert.Equal(t, state, r.Firm.State)
			}
		})
	}
}

func TestSearch_StLouisByAUM(t *testing.T) {
	e := newTestEngine(t, seededStore(t))

	resp, err := e.Search(context.Background(), models.SearchRequest{
		Query:   "St. Louis",
		Filters: models.SearchFilters{State: "MO"},
	})
	require.NoError(t, err)
	// equal lexical rank; larger firm first
	assert.Equal(t, []int64{793, 250}, crds(resp.Results))
}

func TestSearch_MinAUMAndVCActivity(t *testing.T) {
	e := newTestEngine(t, seededStore(t))

	resp, err := e.Search(context.Background(), models.SearchRequest{
		Embedding: vec(1),
		Filters:   models.SearchFilters{MinAUM: ptr(2e9), MinVCActivity: ptr(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1001}, crds(resp.Results))
}

func TestSearch_Deterministic(t *testing.T) {
	e := newTestEngine(t, seededStore(t))
	req := models.SearchRequest{Query: "capital ventures louis", Embedding: vec(1, 0.1), Limit: 4}

	first, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.Results, again.Results)
	}
}

func TestSearch_PaginationIsConsistent(t *testing.T) {
	e := newTestEngine(t, seededStore(t))
	base := models.SearchRequest{Query: "capital ventures louis", Embedding: vec(1, 0.1)}

	full := base
	full.Limit = 4
	all, err := e.Search(context.Background(), full)
	require.NoError(t, err)
	require.Len(t, all.Results, 4)

	var paged []int64
	for offset := 0; offset < 4; offset += 2 {
		req := base
		req.Limit = 2
		req.Offset = offset
		page, err := e.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 4, page.Candidates)
		paged = append(paged, crds(page.Results)...)
	}
	assert.Equal(t, crds(all.Results), paged)
}

func TestSearch_PageBeyondCandidateWindow(t *testing.T) {
	t.Run("empty page, not an error", func(t *testing.T) {
		e := newTestEngine(t, seededStore(t))

		resp, err := e.Search(context.Background(), models.SearchRequest{Query: "jones", Limit: 10, Offset: 195})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
		assert.Equal(t, 1, resp.Candidates)
		assert.Equal(t, 195, resp.Offset)
	})

	t.Run("paths fetch enough to reach the page", func(t *testing.T) {
		store := &fakeStore{}
		e := newTestEngine(t, store)

		_, err := e.Search(context.Background(), models.SearchRequest{Query: "jones", Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int32(DefaultConfig().CandidateWindow), store.lastLimit.Load())

		_, err = e.Search(context.Background(), models.SearchRequest{Query: "jones", Limit: 10, Offset: 200})
		require.NoError(t, err)
		assert.Equal(t, int32(210), store.lastLimit.Load())
	})
}

func TestSearch_MalformedStoredEmbeddingIsExcluded(t *testing.T) {
	s := memory.New(models.EmbeddingDimension, createTestLogger(t))
	s.Restore(
		[]models.Firm{{CRD: 1, Name: "Intact", State: "MO"}, {CRD: 2, Name: "Broken", State: "MO"}},
		[]models.Narrative{{CRD: 1, Embedding: vec(1)}, {CRD: 2, Embedding: []float32{1}}},
	)
	e := newTestEngine(t, s)

	resp, err := e.Search(context.Background(), models.SearchRequest{Embedding: vec(1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, crds(resp.Results))
}
