// Package memory is an in-process implementation of the search store. It backs
// tests and local runs without Postgres.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ria-search/internal/common/logger"
	"ria-search/internal/common/metrics"
	"ria-search/internal/models"
)

const storeLabel = "memory"

type Store struct {
	mu         sync.RWMutex
	dim        int
	firms      map[int64]models.Firm
	narratives map[int64][]models.Narrative
	logger     logger.Logger
}

func New(dim int, log logger.Logger) *Store {
	if dim <= 0 {
		dim = models.EmbeddingDimension
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{
		dim:        dim,
		firms:      make(map[int64]models.Firm),
		narratives: make(map[int64][]models.Narrative),
		logger:     log.WithFields(map[string]interface{}{"store": storeLabel}),
	}
}

// AddFirm stores or replaces a firm. When funds are given, VC activity and
// fund types are derived from them.
func (s *Store) AddFirm(firm models.Firm, funds ...models.Fund) {
	if len(funds) > 0 {
		firm.VCActivity = models.VCActivity(funds)
		firm.PrivateFundCount = len(funds)
		firm.FundTypes = fundTypes(funds)
	}
	firm.State = models.NormalizeState(firm.State)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.firms[firm.CRD] = firm
}

// PutNarrative appends a narrative after checking its embedding.
func (s *Store) PutNarrative(n models.Narrative) error {
	if err := models.ValidateEmbedding(n.Embedding, s.dim); err != nil {
		return fmt.Errorf("narrative for crd %d: %w", n.CRD, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.firms[n.CRD]; !ok {
		return fmt.Errorf("narrative for unknown crd %d", n.CRD)
	}
	s.narratives[n.CRD] = append(s.narratives[n.CRD], n)
	return nil
}

// Restore replaces the contents wholesale without validation, the way a dump
// of legacy rows would be loaded.
func (s *Store) Restore(firms []models.Firm, narratives []models.Narrative) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.firms = make(map[int64]models.Firm, len(firms))
	for _, f := range firms {
		s.firms[f.CRD] = f
	}
	s.narratives = make(map[int64][]models.Narrative, len(narratives))
	for _, n := range narratives {
		s.narratives[n.CRD] = append(s.narratives[n.CRD], n)
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.firms)
}

func (s *Store) VectorSearch(ctx context.Context, embedding []float32, threshold float64, filters models.SearchFilters, limit int) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := make(map[int64]float64)
	malformed := 0
	for crd, narratives := range s.narratives {
		firm, ok := s.firms[crd]
		if !ok || !filters.Matches(firm) {
			continue
		}
		for _, n := range narratives {
			if err := models.ValidateEmbedding(n.Embedding, s.dim); err != nil {
				malformed++
				s.logger.Warn("skipping malformed embedding", map[string]interface{}{
					"crd":   crd,
					"width": len(n.Embedding),
					"error": err.Error(),
				})
				continue
			}
			sim := cosine(embedding, n.Embedding)
			if sim <= threshold {
				continue
			}
			if prev, ok := best[crd]; !ok || sim > prev {
				best[crd] = sim
			}
		}
	}
	if malformed > 0 {
		metrics.MalformedEmbeddings.WithLabelValues(storeLabel).Add(float64(malformed))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.rank(best, limit), nil
}

func (s *Store) TextSearch(ctx context.Context, query string, filters models.SearchFilters, limit int) ([]models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := models.QueryTerms(query)
	if len(terms) == 0 {
		return []models.Candidate{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make(map[int64]float64)
	for crd, firm := range s.firms {
		if !filters.Matches(firm) {
			continue
		}
		if r := textRank(terms, models.Tokenize(firm.SearchableText())); r > 0 {
			scores[crd] = r
		}
	}
	return s.rank(scores, limit), nil
}

func (s *Store) AttributeLookup(ctx context.Context, crds []int64) (map[int64]models.Firm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]models.Firm, len(crds))
	for _, crd := range crds {
		if f, ok := s.firms[crd]; ok {
			out[crd] = f
		}
	}
	return out, nil
}

// rank orders scored firms by score desc, AUM desc (unknown last), CRD asc and
// truncates to limit. Callers hold the read lock.
func (s *Store) rank(scores map[int64]float64, limit int) []models.Candidate {
	out := make([]models.Candidate, 0, len(scores))
	for crd, score := range scores {
		out = append(out, models.Candidate{CRD: crd, Score: score, AUM: s.firms[crd].AUM})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if (a.AUM == nil) != (b.AUM == nil) {
			return a.AUM != nil
		}
		if a.AUM != nil && *a.AUM != *b.AUM {
			return *a.AUM > *b.AUM
		}
		return a.CRD < b.CRD
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// textRank scores one point per distinct query term present in the document
// plus a small bonus for repeated occurrences. Any matching term qualifies.
func textRank(terms, doc []string) float64 {
	counts := make(map[string]int, len(doc))
	for _, tok := range doc {
		counts[tok]++
	}
	rank := 0.0
	for _, t := range terms {
		if c := counts[t]; c > 0 {
			rank += 1 + 0.1*float64(c-1)
		}
	}
	return rank
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func fundTypes(funds []models.Fund) []string {
	spellings := make([]string, len(funds))
	for i, f := range funds {
		spellings[i] = f.FundType
	}
	return models.CanonicalFundTypes(spellings)
}
