// internal/workers/search/query-postgresql/handler.go
package querypostgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/common/logger"
	"ria-search/internal/common/metrics"
	"ria-search/internal/models"
	"ria-search/internal/store/postgres"
	"ria-search/internal/workers/search/query-postgresql/queries"
)

const (
	TaskType = "query-postgresql"
)

type Handler struct {
	config       *Config
	source       queries.Source
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, source queries.Source, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		source:       source,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInvalidRequestError("input cannot be nil")
	}

	queryType := models.QueryType(input.QueryType)
	if _, exists := queries.Registry[queryType]; !exists {
		return nil, apperrors.NewInvalidQueryTypeError(input.QueryType)
	}

	params := queries.Params{CRD: input.CRD, CRDs: input.CRDs}
	data, rowCount, execTime, err := queries.Execute(ctx, h.source, queryType, params)
	metrics.StoreQueryDuration.WithLabelValues("postgres", string(queryType)).Observe(float64(execTime) / 1000)
	if err != nil {
		switch {
		case errors.Is(err, queries.ErrMissingParam):
			return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("%s requires %s", queryType, requiredParam(queryType)))
		case errors.Is(err, postgres.ErrNotFound):
			return nil, apperrors.NewEntityNotFoundError(input.CRD)
		case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
			return nil, apperrors.NewQueryTimeoutError(string(queryType))
		default:
			return nil, apperrors.NewQueryExecutionFailedError(string(queryType), err)
		}
	}

	h.logger.Info("query executed", map[string]interface{}{
		"queryType":  queryType,
		"rowCount":   rowCount,
		"durationMs": execTime,
	})

	return &Output{
		Data:               data,
		RowCount:           rowCount,
		QueryExecutionTime: execTime,
	}, nil
}

func requiredParam(qt models.QueryType) string {
	if qt == models.QueryTypeFirmProfiles {
		return "crds"
	}
	return "crd"
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.As(err).Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
