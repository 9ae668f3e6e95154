package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/chat-gateway/internal/rag"
	"github.com/upb/chat-gateway/utils"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	switch {
	case utils.IsValidationError(err):
		HandleValidationError(w, err, logger)

	case rag.IsEmbeddingError(err):
		// The embedding backend is an upstream dependency
		if err := utils.WriteError(w, http.StatusBadGateway, err.Error(), nil); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	default:
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var details map[string]interface{}
	message := err.Error()
	if fields := utils.GetValidationFields(err); fields != nil {
		details = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		message = "Validation failed"
	}
	if err := utils.WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
