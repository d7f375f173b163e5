package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/common/logger"
	"ria-search/internal/common/metrics"
	"ria-search/internal/common/observability"
	"ria-search/internal/models"
)

const (
	PathSemantic   = "semantic"
	PathLexical    = "lexical"
	PathAttributes = "attributes"
)

var ErrStoreRequired = errors.New("search: store is required")

// Engine is the hybrid retrieval core. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	store  Store
	cfg    Config
	logger logger.Logger
	obs    *observability.Observability
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObservability traces each retrieval path on the service tracer.
func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) {
		e.obs = o
	}
}

func NewEngine(store Store, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("search: invalid config: %w", err)
	}

	e := &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithFields(map[string]interface{}{"component": "search-engine"})
	return e, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

type pathOutcome struct {
	ran        bool
	candidates []models.Candidate
	err        error
}

// Search runs the filtered semantic and lexical paths concurrently, merges and
// ranks their candidates, and returns the requested page.
//
// An empty query skips the lexical path and a nil embedding skips the semantic
// one; when both are absent the result is an empty page. A path that fails or
// times out contributes nothing; only when every path that ran failed does
// Search return a StorageTimeout error.
func (e *Engine) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	req, threshold, err := e.cfg.normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	resp := &models.SearchResponse{
		Results: []models.Result{},
		Limit:   req.Limit,
		Offset:  req.Offset,
	}

	var semantic, lexical pathOutcome
	semantic.ran = req.Embedding != nil
	lexical.ran = req.Query != ""

	if !semantic.ran && !lexical.ran {
		resp.TookMs = time.Since(start).Milliseconds()
		return resp, nil
	}

	candidates := e.cfg.candidateLimit(req)
	g, gctx := errgroup.WithContext(ctx)
	if semantic.ran {
		g.Go(func() error {
			semantic.candidates, semantic.err = e.runPath(gctx, PathSemantic, e.cfg.SemanticTimeout,
				func(ctx context.Context) ([]models.Candidate, error) {
					return e.store.VectorSearch(ctx, req.Embedding, threshold, req.Filters, candidates)
				})
			return nil
		})
	}
	if lexical.ran {
		g.Go(func() error {
			lexical.candidates, lexical.err = e.runPath(gctx, PathLexical, e.cfg.LexicalTimeout,
				func(ctx context.Context) ([]models.Candidate, error) {
					return e.store.TextSearch(ctx, req.Query, req.Filters, candidates)
				})
			return nil
		})
	}
	_ = g.Wait()

	// caller went away; nothing useful to return
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !semantic.ran {
		resp.Degraded = append(resp.Degraded, PathSemantic+":skipped")
	}
	if !lexical.ran {
		resp.Degraded = append(resp.Degraded, PathLexical+":skipped")
	}
	failed := 0
	for _, p := range []struct {
		name    string
		outcome pathOutcome
	}{{PathSemantic, semantic}, {PathLexical, lexical}} {
		if !p.outcome.ran || p.outcome.err == nil {
			continue
		}
		failed++
		reason := degradeReason(p.outcome.err)
		resp.Degraded = append(resp.Degraded, p.name+":"+reason)
		metrics.SearchPathDegraded.WithLabelValues(p.name, reason).Inc()
		e.logger.Warn("retrieval path degraded", map[string]interface{}{
			"path":   p.name,
			"reason": reason,
			"error":  p.outcome.err.Error(),
		})
	}

	ran := 0
	if semantic.ran {
		ran++
	}
	if lexical.ran {
		ran++
	}
	if failed == ran {
		return nil, apperrors.NewStorageTimeoutError(fmt.Sprintf("%d of %d retrieval paths failed", failed, ran)).
			WithCause(errors.Join(semantic.err, lexical.err))
	}

	ranked := Merge(semantic.candidates, lexical.candidates, Weights{
		Semantic: e.cfg.SemanticWeight,
		Text:     e.cfg.TextWeight,
	})
	resp.Candidates = len(ranked)
	resp.Results = Page(ranked, req.Offset, req.Limit)

	if e.cfg.Hydrate && len(resp.Results) > 0 {
		if err := e.hydrate(ctx, resp.Results); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			resp.Degraded = append(resp.Degraded, PathAttributes+":"+degradeReason(err))
			e.logger.Warn("attribute lookup failed, returning bare results", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	resp.TookMs = time.Since(start).Milliseconds()
	e.logger.Debug("search completed", map[string]interface{}{
		"semanticCandidates": len(semantic.candidates),
		"lexicalCandidates":  len(lexical.candidates),
		"merged":             resp.Candidates,
		"returned":           len(resp.Results),
		"degraded":           resp.Degraded,
		"tookMs":             resp.TookMs,
	})

	return resp, nil
}

func (e *Engine) runPath(ctx context.Context, path string, timeout time.Duration, fn func(context.Context) ([]models.Candidate, error)) ([]models.Candidate, error) {
	ctx, span := e.obs.StartSpan(ctx, "search."+path)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	candidates, err := fn(ctx)
	metrics.SearchPathDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, degradeReason(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return candidates, nil
}

func (e *Engine) hydrate(ctx context.Context, results []models.Result) error {
	ctx, span := e.obs.StartSpan(ctx, "search."+PathAttributes)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.LexicalTimeout)
	defer cancel()

	crds := make([]int64, len(results))
	for i, r := range results {
		crds[i] = r.CRD
	}

	firms, err := e.store.AttributeLookup(ctx, crds)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for i := range results {
		if firm, ok := firms[results[i].CRD]; ok {
			firm := firm
			results[i].Firm = &firm
			if results[i].AUM == nil {
				results[i].AUM = firm.AUM
			}
		}
	}
	return nil
}

func degradeReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
