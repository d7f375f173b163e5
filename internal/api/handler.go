// Package api exposes hybrid search and firm profiles over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/common/logger"
	"ria-search/internal/common/metrics"
	"ria-search/internal/common/observability"
	"ria-search/internal/common/validation"
	"ria-search/internal/embedding"
	"ria-search/internal/models"
)

const (
	maxBodyBytes     = 1 << 20
	requestIDHeader  = "X-Request-ID"
	cacheHeader      = "X-Cache"
	sourceHTTP       = "http"
	degradedEmbedder = "embedding:unavailable"
)

// Searcher runs one hybrid search.
type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
}

// ResponseCache stores whole search pages keyed by request.
type ResponseCache interface {
	Get(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, bool)
	Set(ctx context.Context, req models.SearchRequest, resp *models.SearchResponse)
}

// FirmReader loads the firm profile shown by GET /api/v1/firms/{crd}.
type FirmReader interface {
	Firm(ctx context.Context, crd int64) (models.Firm, error)
	Funds(ctx context.Context, crd int64) ([]models.Fund, error)
	Narratives(ctx context.Context, crd int64) ([]models.Narrative, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Deps struct {
	Searcher Searcher
	// Optional.
	Embedder embedding.Embedder
	Cache    ResponseCache
	Firms    FirmReader
	Checks   map[string]ReadinessCheck
	Obs      *observability.Observability
}

type Handler struct {
	deps      Deps
	validator *validation.Validator
	logger    logger.Logger
	notFound  error
}

// Option customizes a Handler.
type Option func(*Handler)

// WithNotFound sets the error the FirmReader returns for an unknown CRD.
func WithNotFound(err error) Option {
	return func(h *Handler) {
		h.notFound = err
	}
}

func NewHandler(deps Deps, log logger.Logger, opts ...Option) (*Handler, error) {
	if deps.Searcher == nil {
		return nil, errors.New("api: searcher is required")
	}
	v, err := validation.NewSearchRequestValidator()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	h := &Handler{
		deps:      deps,
		validator: v,
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes registers the API on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", h.withRequestID(h.handleSearch))
	mux.HandleFunc("GET /api/v1/firms/{crd}", h.withRequestID(h.handleFirm))
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
	return mux
}

type ctxKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (h *Handler) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := h.logger.WithFields(map[string]interface{}{"requestId": requestID(ctx)})

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, start, apperrors.NewInvalidRequestError(fmt.Sprintf("read body: %v", err)))
		return
	}
	req, err := h.decodeSearchRequest(body)
	if err != nil {
		h.fail(w, r, start, err)
		return
	}

	if h.deps.Cache != nil {
		if cached, ok := h.deps.Cache.Get(ctx, req); ok {
			w.Header().Set(cacheHeader, "HIT")
			h.record(ctx, "ok", start, len(cached.Results))
			writeJSON(w, http.StatusOK, cached)
			return
		}
		w.Header().Set(cacheHeader, "MISS")
	}

	query := req
	embedderFailed := false
	if query.Embedding == nil && query.Query != "" && h.deps.Embedder != nil {
		vec, err := h.deps.Embedder.Embed(ctx, query.Query)
		if err != nil {
			if ctx.Err() != nil {
				h.fail(w, r, start, ctx.Err())
				return
			}
			embedderFailed = true
			log.Warn("query embedding unavailable, running lexical only", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			query.Embedding = vec
		}
	}

	resp, err := h.deps.Searcher.Search(ctx, query)
	if err != nil {
		h.fail(w, r, start, err)
		return
	}
	if embedderFailed {
		resp.Degraded = append(resp.Degraded, degradedEmbedder)
	}

	if h.deps.Cache != nil {
		h.deps.Cache.Set(ctx, req, resp)
	}

	log.Info("search served", map[string]interface{}{
		"results":  len(resp.Results),
		"degraded": resp.Degraded,
		"tookMs":   time.Since(start).Milliseconds(),
	})
	h.record(ctx, "ok", start, len(resp.Results))
	writeJSON(w, http.StatusOK, resp)
}

// decodeSearchRequest validates the raw body against the schema before
// decoding. Schema violations under filters are filter errors.
func (h *Handler) decodeSearchRequest(body []byte) (models.SearchRequest, error) {
	var req models.SearchRequest
	if len(body) == 0 {
		return req, apperrors.NewInvalidRequestError("request body is empty")
	}

	result, err := h.validator.ValidateBytes(body)
	if err != nil {
		return req, apperrors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid {
		if result.HasFieldPrefix("filters") {
			return req, apperrors.NewInvalidFilterError(result.Errors[0].Field, result.String())
		}
		return req, apperrors.NewInvalidRequestError(result.String())
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, apperrors.NewInvalidRequestError(err.Error())
	}
	return req, nil
}

type firmProfile struct {
	Firm      models.Firm   `json:"firm"`
	AUM       string        `json:"aumDisplay,omitempty"`
	Funds     []models.Fund `json:"funds"`
	Narrative string        `json:"narrative,omitempty"`
}

func (h *Handler) handleFirm(w http.ResponseWriter, r *http.Request) {
	if h.deps.Firms == nil {
		writeError(w, r, http.StatusNotImplemented, apperrors.NewInternalError(errors.New("firm profiles are not configured")))
		return
	}

	crd, err := strconv.ParseInt(r.PathValue("crd"), 10, 64)
	if err != nil || crd <= 0 {
		writeError(w, r, http.StatusBadRequest, apperrors.NewInvalidRequestError("crd must be a positive integer"))
		return
	}

	ctx := r.Context()
	firm, err := h.deps.Firms.Firm(ctx, crd)
	if err != nil {
		if h.notFound != nil && errors.Is(err, h.notFound) {
			writeError(w, r, http.StatusNotFound, apperrors.NewEntityNotFoundError(crd))
			return
		}
		stdErr := apperrors.NewQueryExecutionFailedError(string(models.QueryTypeFirmProfile), err)
		h.logger.Error("firm lookup failed", map[string]interface{}{
			"requestId": requestID(ctx),
			"crd":       crd,
			"error":     err.Error(),
		})
		writeError(w, r, StatusFor(stdErr.Code), stdErr)
		return
	}

	profile := firmProfile{Firm: firm, Funds: []models.Fund{}}
	if firm.AUM != nil {
		profile.AUM = models.FormatAUM(*firm.AUM)
	}
	if funds, err := h.deps.Firms.Funds(ctx, crd); err == nil {
		profile.Funds = funds
	} else {
		h.logger.Warn("fund lookup failed", map[string]interface{}{"crd": crd, "error": err.Error()})
	}
	if narratives, err := h.deps.Firms.Narratives(ctx, crd); err == nil && len(narratives) > 0 {
		profile.Narrative = narratives[0].Text
	} else if err != nil {
		h.logger.Warn("narrative lookup failed", map[string]interface{}{"crd": crd, "error": err.Error()})
	}
	if profile.Narrative == "" {
		profile.Narrative = models.BuildNarrative(firm, profile.Funds)
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Checks))
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	ctx := r.Context()
	if errors.Is(err, context.Canceled) {
		// client went away
		h.record(ctx, "canceled", start, 0)
		return
	}

	stdErr := apperrors.As(err)
	status := StatusFor(stdErr.Code)
	fields := map[string]interface{}{
		"requestId": requestID(ctx),
		"errorCode": stdErr.Code,
		"status":    status,
		"error":     err.Error(),
	}
	if status >= 500 {
		h.logger.Error("request failed", fields)
	} else {
		h.logger.Info("request rejected", fields)
	}
	h.record(ctx, string(stdErr.Code), start, 0)
	writeError(w, r, status, stdErr)
}

func (h *Handler) record(ctx context.Context, status string, start time.Time, results int) {
	metrics.SearchRequests.WithLabelValues(sourceHTTP, status).Inc()
	if status == "ok" {
		metrics.SearchResults.WithLabelValues(sourceHTTP).Observe(float64(results))
	}
	h.deps.Obs.RecordSearch(ctx, sourceHTTP, status, time.Since(start))
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidFilter, apperrors.ErrCodeEmbeddingDimensionMismatch,
		apperrors.ErrCodeInvalidRequest, apperrors.ErrCodeInvalidQueryType:
		return http.StatusBadRequest
	case apperrors.ErrCodeEntityNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeStorageTimeout, apperrors.ErrCodeQueryTimeout, apperrors.ErrCodeEmbeddingUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeDatabaseConnectionFailed, apperrors.ErrCodeSearchQueryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error struct {
		Code      string                 `json:"code"`
		Message   string                 `json:"message"`
		Details   string                 `json:"details,omitempty"`
		Retryable bool                   `json:"retryable"`
		Metadata  map[string]interface{} `json:"metadata,omitempty"`
	} `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, e *apperrors.StandardError) {
	var body errorBody
	body.Error.Code = string(e.Code)
	body.Error.Message = e.Message
	body.Error.Details = e.Details
	body.Error.Retryable = e.Retryable
	body.Error.Metadata = e.Metadata
	body.RequestID = requestID(r.Context())
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
