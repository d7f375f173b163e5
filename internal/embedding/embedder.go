// Package embedding turns query text into vectors for the semantic path.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"ria-search/internal/common/config"
	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/models"
)

var ErrEmptyText = errors.New("embedding: text is empty")

// Embedder produces a query embedding of the index dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	dim     int
	timeout time.Duration
}

// NewOpenAI builds an embedder against any OpenAI-compatible endpoint. doer
// may be nil to use the SDK's default HTTP client.
func NewOpenAI(cfg config.EmbeddingConfig, dim int, doer openai.HTTPDoer) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if doer != nil {
		clientConfig.HTTPClient = doer
	}
	if dim <= 0 {
		dim = models.EmbeddingDimension
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		dim:     dim,
		timeout: config.GetDuration(cfg.Timeout),
	}
}

// Embed returns EMBEDDING_UNAVAILABLE for transport failures and for vectors
// that do not match the index dimension.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingUnavailableError(fmt.Errorf("create embeddings: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.NewEmbeddingUnavailableError(errors.New("empty embedding response"))
	}

	vec := resp.Data[0].Embedding
	if err := models.ValidateEmbedding(vec, e.dim); err != nil {
		return nil, apperrors.NewEmbeddingUnavailableError(fmt.Errorf("model %s: %w", e.model, err))
	}
	return vec, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dim
}
