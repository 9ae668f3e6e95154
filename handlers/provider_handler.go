package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/gateway"
	"github.com/upb/chat-gateway/utils"
)

// ProviderLister reports provider status
type ProviderLister interface {
	Providers(ctx context.Context) []gateway.ProviderStatus
}

// ProviderHandler handles provider status requests
type ProviderHandler struct {
	lister ProviderLister
	logger *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(lister ProviderLister, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		lister: lister,
		logger: logger,
	}
}

// HandleList handles GET /api/v1/providers
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.lister.Providers(r.Context())); err != nil {
		h.logger.Error("failed to write providers response", zap.Error(err))
	}
}
