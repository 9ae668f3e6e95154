package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/gateway"
	"github.com/upb/chat-gateway/internal/providers"
	"github.com/upb/chat-gateway/middleware"
	"github.com/upb/chat-gateway/utils"
)

// ChatRequest is the body of POST /api/v1/chat
type ChatRequest struct {
	Message string                `json:"message" validate:"required,max=32000"`
	Context providers.ChatContext `json:"context"`
}

// ChatResponse is the payload returned for a chat request
type ChatResponse struct {
	RequestID  string         `json:"request_id"`
	Reply      string         `json:"reply"`
	Structured map[string]any `json:"structured,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Variant    string         `json:"variant,omitempty"`
	Passages   int            `json:"passages"`
	Degraded   bool           `json:"degraded,omitempty"`
	LatencyMs  int64          `json:"latency_ms"`
}

// ChatService answers chat messages
type ChatService interface {
	Chat(ctx context.Context, message string, cc providers.ChatContext) gateway.Reply
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	service ChatService
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat handles POST /api/v1/chat.
// The gateway never fails a request; exhausted providers yield an apology.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httpRequestID := middleware.GetRequestIDFromContext(ctx)

	var req ChatRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("http_request_id", httpRequestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("http_request_id", httpRequestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	start := time.Now()
	reply := h.service.Chat(ctx, req.Message, req.Context)
	latency := time.Since(start)

	h.logger.Info("chat answered",
		zap.String("http_request_id", httpRequestID),
		zap.String("request_id", reply.RequestID),
		zap.String("provider", reply.Provider),
		zap.String("variant", string(reply.Variant)),
		zap.Int("passages", len(reply.Augmentation.Passages)),
		zap.Duration("latency", latency))

	response := ChatResponse{
		RequestID:  reply.RequestID,
		Reply:      reply.Text,
		Structured: reply.Structured,
		Provider:   reply.Provider,
		Variant:    string(reply.Variant),
		Passages:   len(reply.Augmentation.Passages),
		Degraded:   reply.Augmentation.Degraded != nil,
		LatencyMs:  latency.Milliseconds(),
	}
	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", reply.RequestID),
			zap.Error(err))
	}
}
