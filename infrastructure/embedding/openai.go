// Package embedding provides the embedder implementations behind
// ports.Embedder: an OpenAI-backed client for production and a
// deterministic local embedder for development and tests.
package embedding

import (
	"context"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"bms-backend/application/ports"
	pkgerrors "bms-backend/pkg/errors"
)

// OpenAIEmbedder computes embeddings through the OpenAI embeddings API
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	logger    *zap.Logger
}

// NewOpenAIEmbedder creates an embedder for the given model and dimension.
// An empty model defaults to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string, dimension int, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, pkgerrors.NewValidationError("OpenAI API key is required")
	}
	if dimension <= 0 {
		return nil, pkgerrors.NewValidationError("embedding dimension must be positive")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(apiKey),
		model:     openai.EmbeddingModel(model),
		dimension: dimension,
		logger:    logger,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dimension,
	})
	if err != nil {
		e.logger.Error("embedding request failed",
			zap.String("model", string(e.model)),
			zap.Error(err))
		return nil, pkgerrors.NewExternalError("openai embeddings", err)
	}
	if len(resp.Data) == 0 {
		return nil, pkgerrors.NewExternalError("openai embeddings", nil).
			WithDetail("reason", "empty response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimension {
		return nil, pkgerrors.NewDimensionMismatchError(e.dimension, len(vec))
	}
	return vec, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

var _ ports.Embedder = (*OpenAIEmbedder)(nil)
