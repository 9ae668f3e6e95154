package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/rag"
	"github.com/upb/chat-gateway/utils"
)

// IndexDocumentRequest is the body of POST /api/v1/documents
type IndexDocumentRequest struct {
	ID       string         `json:"id" validate:"omitempty,max=256"`
	Text     string         `json:"text" validate:"required,max=100000"`
	Metadata map[string]any `json:"metadata"`
}

// SearchRequest is the body of POST /api/v1/documents/search
type SearchRequest struct {
	Query     string `json:"query" validate:"required"`
	Namespace string `json:"namespace"`
	TopK      int    `json:"top_k" validate:"omitempty,min=1,max=50"`
}

// DocumentStore indexes and searches retrieval documents
type DocumentStore interface {
	IndexDocument(ctx context.Context, id, text string, metadata map[string]any) error
	Search(ctx context.Context, namespace, query string, topK int) ([]rag.Match, error)
}

// DocumentHandler handles retrieval document HTTP requests
type DocumentHandler struct {
	store  DocumentStore
	logger *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(store DocumentStore, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:  store,
		logger: logger,
	}
}

// HandleIndex handles POST /api/v1/documents.
// A missing id is replaced with a generated UUID.
func (h *DocumentHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexDocumentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if err := h.store.IndexDocument(r.Context(), req.ID, req.Text, req.Metadata); err != nil {
		h.logger.Error("failed to index document",
			zap.String("document_id", req.ID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, map[string]string{"id": req.ID})
}

// HandleSearch handles POST /api/v1/documents/search
func (h *DocumentHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	matches, err := h.store.Search(r.Context(), req.Namespace, req.Query, req.TopK)
	if err != nil {
		h.logger.Warn("search failed", zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}
	if matches == nil {
		matches = []rag.Match{}
	}
	_ = utils.WriteOK(w, matches)
}
