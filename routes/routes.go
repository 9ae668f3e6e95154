package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/chat-gateway/app"
	"github.com/upb/chat-gateway/handlers"
	"github.com/upb/chat-gateway/middleware"
	"github.com/upb/chat-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger.Named("http")))
	r.Use(chimw.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.KV, deps.Logger)
	chat := handlers.NewChatHandler(deps.Gateway, deps.Logger)
	status := handlers.NewProviderHandler(deps.Gateway, deps.Logger)

	// Chat is bounded by the transport timeouts, not a request deadline
	timeout := chimw.Timeout(deps.Config.Server.WriteTimeout)

	r.Group(func(r chi.Router) {
		r.Use(timeout)

		// Health check endpoints
		r.Get("/healthz", health.HandleHealth)
		r.Get("/readyz", health.HandleReadiness)

		if deps.Prometheus != nil {
			r.Method(http.MethodGet, "/metrics", deps.Prometheus.Handler())
		}
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", chat.HandleChat)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Get("/providers", status.HandleList)

			if deps.RAG != nil {
				documents := handlers.NewDocumentHandler(deps.RAG, deps.Logger)
				r.Route("/documents", func(r chi.Router) {
					r.Post("/", documents.HandleIndex)
					r.Post("/search", documents.HandleSearch)
				})
			}
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
