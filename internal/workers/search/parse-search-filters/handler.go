// internal/workers/search/parse-search-filters/handler.go
package parsesearchfilters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/common/logger"
	"ria-search/internal/common/metrics"
	"ria-search/internal/models"
)

const TaskType = "parse-search-filters"

var (
	errNotANumber = errors.New("not a number")
	errNegative   = errors.New("negative values are not allowed")
)

type Handler struct {
	config       *Config
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	raw := input.RawFilters
	if raw == nil {
		raw = make(map[string]interface{})
	}

	req := models.SearchRequest{Query: strings.TrimSpace(input.Query)}
	if req.Query == "" {
		if kw, ok := raw["keywords"].(string); ok {
			req.Query = strings.TrimSpace(kw)
		}
	}
	f := &req.Filters

	if v, ok := raw["state"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, apperrors.NewInvalidFilterError("state", "state must be a string")
		}
		code, ok := stateCode(s)
		if !ok {
			return nil, apperrors.NewInvalidFilterError("state", fmt.Sprintf("unknown state %q", s))
		}
		f.State = code
	}

	if v, ok := raw["city"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, apperrors.NewInvalidFilterError("city", "city must be a string")
		}
		f.City = strings.TrimSpace(s)
	}

	if v, ok := raw["minAum"]; ok && v != nil {
		amount, err := parseAmount(v)
		if err != nil {
			return nil, apperrors.NewInvalidFilterError("minAum", fmt.Sprintf("minAum %v: %v", v, err))
		}
		f.MinAUM = &amount
	}

	if v, ok := raw["minVcActivity"]; ok && v != nil {
		n, err := parseCount(v)
		if err != nil {
			return nil, apperrors.NewInvalidFilterError("minVcActivity", fmt.Sprintf("minVcActivity %v: %v", v, err))
		}
		f.MinVCActivity = &n
	}

	if v, ok := raw["fundType"]; ok {
		s, _ := v.(string)
		ft, ok := models.CanonicalFundType(s)
		if !ok {
			return nil, apperrors.NewInvalidFilterError("fundType", fmt.Sprintf("unknown fund type %v", v))
		}
		f.FundType = ft
	}

	if v, ok := raw["threshold"]; ok && v != nil {
		t, ok := v.(float64)
		if !ok || t < -1 || t > 1 {
			return nil, apperrors.NewInvalidFilterError("threshold", fmt.Sprintf("threshold must be a number within [-1, 1], got %v", v))
		}
		f.Threshold = &t
	}

	page := h.parsePagination(raw["pagination"])
	req.Limit = page.Size
	req.Offset = (page.Page - 1) * page.Size

	h.logger.Info("filters parsed successfully", map[string]interface{}{
		"query":      req.Query,
		"filters":    req.Filters,
		"pagination": page,
	})

	return &Output{SearchRequest: req, Pagination: page}, nil
}

// parsePagination falls back to page 1 and the default size on anything it
// cannot read. Sizes above the maximum are capped.
func (h *Handler) parsePagination(raw interface{}) Pagination {
	p := Pagination{Page: 1, Size: h.config.DefaultSize}
	pg, ok := raw.(map[string]interface{})
	if !ok {
		return p
	}
	if page, err := parseCount(pg["page"]); err == nil && page >= 1 {
		p.Page = page
	}
	if size, err := parseCount(pg["size"]); err == nil && size >= 1 {
		p.Size = size
		if size > h.config.MaxSize {
			p.Size = h.config.MaxSize
		}
	}
	return p
}

var amountUnits = []struct {
	suffix string
	scale  float64
}{
	{"trillion", 1e12},
	{"billion", 1e9},
	{"million", 1e6},
	{"thousand", 1e3},
	{"bn", 1e9},
	{"mm", 1e6},
	{"t", 1e12},
	{"b", 1e9},
	{"m", 1e6},
	{"k", 1e3},
}

// parseAmount reads dollar amounts such as 5000000, "$5,000,000", "5B",
// "500M" and "2.5 billion".
func parseAmount(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return 0, errNegative
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errNotANumber
		}
		return v, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		s = strings.TrimPrefix(s, "usd")
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)

		scale := 1.0
		for _, u := range amountUnits {
			if strings.HasSuffix(s, u.suffix) {
				s = strings.TrimSuffix(s, u.suffix)
				scale = u.scale
				break
			}
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, errNotANumber
		}
		if n < 0 {
			return 0, errNegative
		}
		return n * scale, nil
	default:
		return 0, errNotANumber
	}
}

func parseCount(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, errNotANumber
		}
		if v < 0 {
			return 0, errNegative
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errNotANumber
		}
		if n < 0 {
			return 0, errNegative
		}
		return n, nil
	default:
		return 0, errNotANumber
	}
}

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "district of columbia": "DC",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID", "illinois": "IL",
	"indiana": "IN", "iowa": "IA", "kansas": "KS", "kentucky": "KY", "louisiana": "LA",
	"maine": "ME", "maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR",
	"pennsylvania": "PA", "puerto rico": "PR", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

// stateCode accepts a two-letter code in any case or a full state name.
func stateCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 2 {
		code := models.NormalizeState(s)
		for _, c := range code {
			if c < 'A' || c > 'Z' {
				return "", false
			}
		}
		return code, true
	}
	code, ok := stateNames[strings.ToLower(s)]
	return code, ok
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
	if _, err := cmd.Send(context.Background()); err != nil {
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
