// internal/workers/search/hybrid-search/handler.go
package hybridsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/common/logger"
	"ria-search/internal/common/metrics"
	"ria-search/internal/common/observability"
	"ria-search/internal/common/validation"
	"ria-search/internal/embedding"
	"ria-search/internal/models"
)

const (
	TaskType = "hybrid-search"

	sourceZeebe      = "zeebe"
	degradedEmbedder = "embedding:unavailable"
)

type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error)
}

type Handler struct {
	config       *Config
	searcher     Searcher
	embedder     embedding.Embedder
	validator    *validation.Validator
	errorHandler *apperrors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
}

// NewHandler builds the worker. embedder and obs may be nil.
func NewHandler(config *Config, searcher Searcher, embedder embedding.Embedder, obs *observability.Observability, log logger.Logger) (*Handler, error) {
	v, err := validation.NewSearchRequestValidator()
	if err != nil {
		return nil, err
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		searcher:     searcher,
		embedder:     embedder,
		validator:    v,
		errorHandler: apperrors.NewErrorHandler(log),
		obs:          obs,
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, start, apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, start, err)
		return
	}

	h.completeJob(ctx, client, job, start, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	req, err := h.decode(input.SearchRequest)
	if err != nil {
		return nil, err
	}

	embedderFailed := false
	if req.Embedding == nil && req.Query != "" && h.embedder != nil {
		vec, err := h.embedder.Embed(ctx, req.Query)
		switch {
		case err == nil:
			req.Embedding = vec
		case ctx.Err() != nil:
			return nil, apperrors.NewStorageTimeoutError("job deadline exceeded while embedding the query")
		default:
			embedderFailed = true
			h.logger.Warn("query embedding unavailable, running lexical only", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	resp, err := h.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if embedderFailed {
		resp.Degraded = append(resp.Degraded, degradedEmbedder)
	}

	h.logger.Info("search completed", map[string]interface{}{
		"results":    len(resp.Results),
		"candidates": resp.Candidates,
		"degraded":   resp.Degraded,
	})

	return &Output{
		SearchResponse: resp,
		ResultCount:    len(resp.Results),
		Degraded:       len(resp.Degraded) > 0,
	}, nil
}

func (h *Handler) decode(raw json.RawMessage) (models.SearchRequest, error) {
	var req models.SearchRequest
	if len(raw) == 0 || string(raw) == "null" {
		return req, apperrors.NewInvalidRequestError("searchRequest variable is required")
	}

	result, err := h.validator.ValidateBytes(raw)
	if err != nil {
		return req, apperrors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid {
		if result.HasFieldPrefix("filters") {
			return req, apperrors.NewInvalidFilterError(result.Errors[0].Field, result.String())
		}
		return req, apperrors.NewInvalidRequestError(result.String())
	}

	if err := json.Unmarshal(raw, &req); err != nil {
		return req, apperrors.NewInvalidRequestError(err.Error())
	}
	return req, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, output *Output) {
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.SearchRequests.WithLabelValues(sourceZeebe, "ok").Inc()
	metrics.SearchResults.WithLabelValues(sourceZeebe).Observe(float64(output.ResultCount))
	h.obs.RecordSearch(ctx, sourceZeebe, "ok", time.Since(start))

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	code := string(apperrors.As(err).Code)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	metrics.SearchRequests.WithLabelValues(sourceZeebe, code).Inc()
	h.obs.RecordSearch(ctx, sourceZeebe, code, time.Since(start))

	h.errorHandler.HandleJobError(context.Background(), client, job, err)
}

// Execute runs a search without a Zeebe job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
