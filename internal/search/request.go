package search

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"ria-search/internal/common/config"
	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/models"
)

// Config tunes the engine. Weights and Threshold are empirical defaults.
type Config struct {
	SemanticWeight  float64
	TextWeight      float64
	Threshold       float64
	Dimension       int
	CandidateWindow int
	DefaultLimit    int
	MaxLimit        int
	SemanticTimeout time.Duration
	LexicalTimeout  time.Duration
	// Hydrate attaches firm attributes to each result on the page.
	Hydrate bool
}

func DefaultConfig() Config {
	return Config{
		SemanticWeight:  1.0,
		TextWeight:      0.8,
		Threshold:       0.3,
		Dimension:       models.EmbeddingDimension,
		CandidateWindow: 200,
		DefaultLimit:    10,
		MaxLimit:        100,
		SemanticTimeout: 2 * time.Second,
		LexicalTimeout:  2 * time.Second,
		Hydrate:         true,
	}
}

// ConfigFrom maps the loaded search section onto an engine Config.
func ConfigFrom(cfg config.SearchConfig) Config {
	out := DefaultConfig()
	out.SemanticWeight = cfg.SemanticWeight
	out.TextWeight = cfg.TextWeight
	out.Threshold = cfg.Threshold
	if cfg.Dimension > 0 {
		out.Dimension = cfg.Dimension
	}
	if cfg.CandidateWindow > 0 {
		out.CandidateWindow = cfg.CandidateWindow
	}
	if cfg.DefaultLimit > 0 {
		out.DefaultLimit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 {
		out.MaxLimit = cfg.MaxLimit
	}
	if cfg.SemanticTimeout > 0 {
		out.SemanticTimeout = config.GetDuration(cfg.SemanticTimeout)
	}
	if cfg.LexicalTimeout > 0 {
		out.LexicalTimeout = config.GetDuration(cfg.LexicalTimeout)
	}
	return out
}

func (c Config) validate() error {
	if c.SemanticWeight < 0 || c.TextWeight < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}
	if c.MaxLimit <= 0 || c.DefaultLimit <= 0 || c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("limits must satisfy 0 < default (%d) <= max (%d)", c.DefaultLimit, c.MaxLimit)
	}
	if c.CandidateWindow < c.MaxLimit {
		return fmt.Errorf("candidate window (%d) must be at least max limit (%d)", c.CandidateWindow, c.MaxLimit)
	}
	if c.SemanticTimeout <= 0 || c.LexicalTimeout <= 0 {
		return fmt.Errorf("path timeouts must be positive")
	}
	return nil
}

// normalizeRequest validates caller input and returns a copy with defaults
// applied, state upper-cased, fund type canonicalized and threshold resolved.
func (c Config) normalizeRequest(req models.SearchRequest) (models.SearchRequest, float64, error) {
	out := req
	out.Query = strings.TrimSpace(req.Query)

	if len(req.Embedding) > 0 {
		if len(req.Embedding) != c.Dimension {
			return out, 0, apperrors.NewEmbeddingDimensionMismatchError(c.Dimension, len(req.Embedding))
		}
		if err := models.ValidateEmbedding(req.Embedding, c.Dimension); err != nil {
			return out, 0, apperrors.NewInvalidFilterError("embedding", err.Error())
		}
	} else {
		out.Embedding = nil
	}

	f := req.Filters
	if f.State != "" {
		f.State = models.NormalizeState(f.State)
		if len(f.State) != 2 || !isLetters(f.State) {
			return out, 0, apperrors.NewInvalidFilterError("state", fmt.Sprintf("state must be a two-letter code, got %q", req.Filters.State))
		}
	}
	f.City = strings.TrimSpace(f.City)

	if f.MinAUM != nil {
		v := *f.MinAUM
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return out, 0, apperrors.NewInvalidFilterError("minAum", fmt.Sprintf("minAum must be a non-negative number, got %v", v))
		}
	}
	if f.MinVCActivity != nil && *f.MinVCActivity < 0 {
		return out, 0, apperrors.NewInvalidFilterError("minVcActivity", fmt.Sprintf("minVcActivity must be non-negative, got %d", *f.MinVCActivity))
	}
	if f.FundType != "" {
		ft, ok := models.CanonicalFundType(f.FundType)
		if !ok {
			return out, 0, apperrors.NewInvalidFilterError("fundType", fmt.Sprintf("unknown fund type %q", f.FundType))
		}
		f.FundType = ft
	}

	threshold := c.Threshold
	if f.Threshold != nil {
		t := *f.Threshold
		if t < -1 || t > 1 || math.IsNaN(t) {
			return out, 0, apperrors.NewInvalidFilterError("threshold", fmt.Sprintf("threshold must be within [-1, 1], got %v", t))
		}
		threshold = t
	}
	out.Filters = f

	if out.Limit == 0 {
		out.Limit = c.DefaultLimit
	}
	if out.Limit < 0 || out.Limit > c.MaxLimit {
		return out, 0, apperrors.NewInvalidFilterError("limit", fmt.Sprintf("limit must be within [1, %d], got %d", c.MaxLimit, req.Limit))
	}
	if out.Offset < 0 {
		return out, 0, apperrors.NewInvalidFilterError("offset", fmt.Sprintf("offset must be non-negative, got %d", req.Offset))
	}

	return out, threshold, nil
}

// candidateLimit is how many candidates each path fetches: the window, or
// enough to reach the requested page when it lies beyond the window.
func (c Config) candidateLimit(req models.SearchRequest) int {
	return max(c.CandidateWindow, req.Offset+req.Limit)
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
