package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// GetRequestIDFromContext retrieves the request ID set by the chi RequestID
// middleware, or "" outside that stack.
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
