package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/kv"
)

const (
	DefaultKeyPrefix = "rag:"
	DefaultPageSize  = 500
	DefaultTopK      = 3

	// epsilon keeps cosine similarity finite for zero vectors
	epsilon = 1e-8
)

const (
	fieldVector    = "vector"
	fieldText      = "text"
	fieldMetadata  = "metadata"
	fieldIndexedAt = "indexedAt"
)

// Config configures the retrieval store
type Config struct {
	KeyPrefix string
	PageSize  int64
}

// Store indexes documents as embeddings and answers similarity queries by
// scanning every stored vector.
type Store struct {
	kv        kv.Store
	embedder  Embedder
	logger    *zap.Logger
	keyPrefix string
	pageSize  int64
	now       func() time.Time
}

// NewStore creates a new retrieval store
func NewStore(store kv.Store, embedder Embedder, cfg Config, logger *zap.Logger) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:        store,
		embedder:  embedder,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
		pageSize:  cfg.PageSize,
		now:       time.Now,
	}
}

// IndexDocument embeds text and persists it under a key derived from id.
// Re-indexing the same id overwrites the previous entry.
func (s *Store) IndexDocument(ctx context.Context, id, text string, metadata map[string]any) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("document id is required")
	}

	vector, err := s.embed(ctx, text)
	if err != nil {
		return err
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	fields := map[string]string{
		fieldVector:    string(vectorJSON),
		fieldText:      text,
		fieldMetadata:  string(metadataJSON),
		fieldIndexedAt: s.now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.kv.HSetFields(ctx, s.documentKey(id), fields); err != nil {
		return fmt.Errorf("persist document %q: %w", id, err)
	}

	s.logger.Debug("document indexed",
		zap.String("document_id", id),
		zap.Int("dimensions", len(vector)))
	return nil
}

// RetrieveRelevant returns the text of the topK most similar documents.
// It never fails: any error is logged and yields an empty result.
func (s *Store) RetrieveRelevant(ctx context.Context, namespace, query string, topK int) []string {
	texts, err := s.Retrieve(ctx, namespace, query, topK)
	if err != nil {
		s.logger.Warn("retrieval failed, continuing without context",
			zap.String("namespace", namespace),
			zap.Error(err))
		return []string{}
	}
	return texts
}

// Retrieve is RetrieveRelevant with the failure reported to the caller.
func (s *Store) Retrieve(ctx context.Context, namespace, query string, topK int) ([]string, error) {
	matches, err := s.Search(ctx, namespace, query, topK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	return texts, nil
}

// Search scores every stored document against query and returns the best
// topK, most similar first. The namespace is only used for logging; every
// document is a candidate.
func (s *Store) Search(ctx context.Context, namespace, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVector, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var (
		matches []Match
		cursor  uint64
		scanned int
	)
	// SCAN may return a key more than once
	seen := make(map[string]struct{})
	pattern := s.keyPrefix + "doc:*"
	for {
		next, keys, err := s.kv.Scan(ctx, cursor, pattern, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("scan documents: %w", err)
		}
		for _, key := range keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			scanned++
			doc, err := s.load(ctx, key)
			if err != nil {
				s.logger.Warn("skipping unreadable document",
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			if len(doc.Vector) != len(queryVector) {
				s.logger.Warn("skipping document with mismatched dimensions",
					zap.String("key", key),
					zap.Int("dimensions", len(doc.Vector)),
					zap.Int("expected", len(queryVector)))
				continue
			}
			matches = append(matches, Match{
				ID:       doc.ID,
				Text:     doc.Text,
				Metadata: doc.Metadata,
				Score:    cosine(queryVector, doc.Vector),
			})
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	s.logger.Debug("retrieval complete",
		zap.String("namespace", namespace),
		zap.Int("scanned", scanned),
		zap.Int("returned", len(matches)))
	return matches, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedder.Embeddings(ctx, []string{text})
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, &EmbeddingError{}
	}
	return vectors[0], nil
}

func (s *Store) load(ctx context.Context, key string) (*Document, error) {
	fields, err := s.kv.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	raw, ok := fields[fieldVector]
	if !ok {
		return nil, fmt.Errorf("missing %s field", fieldVector)
	}

	doc := &Document{
		ID:   strings.TrimPrefix(key, s.keyPrefix+"doc:"),
		Text: fields[fieldText],
	}
	if err := json.Unmarshal([]byte(raw), &doc.Vector); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	if meta := fields[fieldMetadata]; meta != "" {
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if ts := fields[fieldIndexedAt]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			doc.IndexedAt = t
		}
	}
	return doc, nil
}

func (s *Store) documentKey(id string) string {
	return s.keyPrefix + "doc:" + id
}

// cosine computes dot(a,b) / (|a|*|b| + epsilon). Both vectors must have the
// same length.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + epsilon)
}
