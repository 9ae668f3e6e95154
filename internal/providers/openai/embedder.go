package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/internal/transport"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// Embedder generates embeddings through an OpenAI-compatible API
type Embedder struct {
	model     string
	client    *goopenai.Client
	transport *transport.Client
	logger    *zap.Logger
}

// NewEmbedder creates a new embedder
func NewEmbedder(config providers.Config, tc *transport.Client, logger *zap.Logger) *Embedder {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultEmbeddingModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		model:     config.Model,
		client:    newClient(config),
		transport: tc,
		logger:    logger,
	}
}

// Embeddings returns one vector per input text, in input order
func (e *Embedder) Embeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	}

	var vectors [][]float32
	err := e.transport.Call(ctx, "embeddings", func(ctx context.Context) error {
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return mapError("embeddings", err)
		}
		out := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return fmt.Errorf("embeddings: index %d out of range", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
