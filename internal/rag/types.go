package rag

import (
	"context"
	"errors"
	"time"
)

// Embedder generates vector embeddings, one per input text in the same order.
type Embedder interface {
	Embeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Document represents an indexed knowledge base entry.
type Document struct {
	ID        string
	Vector    []float32
	Text      string
	Metadata  map[string]any
	IndexedAt time.Time
}

// Match is a scored search hit.
type Match struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// EmbeddingError is returned when the embedder yields no usable vector.
type EmbeddingError struct {
	Err error
}

// Error implements the error interface
func (e *EmbeddingError) Error() string {
	if e.Err == nil {
		return "embedding failed"
	}
	return "embedding failed: " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// IsEmbeddingError checks if an error is an EmbeddingError
func IsEmbeddingError(err error) bool {
	var embErr *EmbeddingError
	return errors.As(err, &embErr)
}
