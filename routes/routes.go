package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/nexus-gateway/app"
	"github.com/upb/nexus-gateway/handlers"
	"github.com/upb/nexus-gateway/middleware"
	"github.com/upb/nexus-gateway/services"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Provider"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Service endpoints
	r.Get("/", handlers.Index(deps))
	r.Get("/health", handlers.Health(deps))
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))
	if deps.Metrics != nil && deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	inferenceHandler := handlers.NewInferenceHandler(deps.Inference, deps.Logger)
	generationHandler := handlers.NewGenerationHandler(deps.Generation, deps.Logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if deps.AuthMiddleware != nil {
			r.Use(deps.AuthMiddleware.RequireAuth)
		}

		r.Get("/status", handlers.StatusHandler(deps))
		r.Get("/models", handlers.ListModelsHandler(deps))

		r.Post("/chat", inferenceHandler.HandleChat)
		r.Post("/chat/stream", inferenceHandler.HandleChatStream)
		r.Post("/embeddings", inferenceHandler.HandleEmbeddings)

		r.Route("/generate", func(r chi.Router) {
			r.Post("/code", generationHandler.HandleGenerateCode)
			r.Post("/app", generationHandler.HandleGenerateApp)
		})

		if deps.Dispatches != nil {
			dispatchHandler := handlers.NewDispatchHandler(deps.Dispatches, deps.Logger)
			r.Route("/dispatches", func(r chi.Router) {
				r.Get("/", dispatchHandler.HandleList)
				r.Get("/{requestID}", dispatchHandler.HandleGetByRequest)
			})
		}
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleServiceError(w, services.ErrRouteNotFound, deps.Logger)
	})

	return r
}
