package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upb/nexus-gateway/app"
	"github.com/upb/nexus-gateway/utils"
)

// HealthResponse is the service health summary
type HealthResponse struct {
	Status          string   `json:"status"`
	Version         string   `json:"version"`
	AppName         string   `json:"app_name"`
	ModelsAvailable []string `json:"models_available"`
}

// Index describes the service and its endpoints
func Index(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, map[string]interface{}{
			"name":    deps.Config.AppName,
			"status":  "online",
			"version": deps.Config.Version,
			"endpoints": map[string]string{
				"chat":          "/api/v1/chat",
				"stream":        "/api/v1/chat/stream",
				"embeddings":    "/api/v1/embeddings",
				"models":        "/api/v1/models",
				"generate_code": "/api/v1/generate/code",
				"generate_app":  "/api/v1/generate/app",
			},
		})
	}
}

// Health reports the service identity and featured models
func Health(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, HealthResponse{
			Status:          "healthy",
			Version:         deps.Config.Version,
			AppName:         deps.Config.AppName,
			ModelsAvailable: deps.Catalog.FeaturedIDs(),
		})
	}
}

// HealthCheck returns a simple liveness handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck runs the dependency checks concurrently. The service is ready
// when at least one backend is configured and every optional dependency that
// was enabled is healthy.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var (
			mu     sync.Mutex
			checks = make(map[string]string)
			ready  = true
		)
		set := func(name, state string, ok bool) {
			mu.Lock()
			defer mu.Unlock()
			checks[name] = state
			if !ok {
				ready = false
			}
		}

		var g errgroup.Group

		g.Go(func() error {
			if deps.DB == nil {
				set("database", "disabled", true)
				return nil
			}
			if err := deps.DB.HealthCheck(ctx); err != nil {
				deps.Logger.Error("database health check failed", zap.Error(err))
				set("database", "unhealthy", false)
				return nil
			}
			set("database", "healthy", true)
			return nil
		})

		g.Go(func() error {
			if deps.Audit == nil {
				set("audit", "disabled", true)
				return nil
			}
			if !deps.Audit.GetStats().Started {
				set("audit", "stopped", false)
				return nil
			}
			set("audit", "running", true)
			return nil
		})

		g.Go(func() error {
			if deps.ProviderRegistry == nil || len(deps.ProviderRegistry.ConfiguredProviders()) == 0 {
				set("providers", "none_configured", false)
				return nil
			}
			set("providers", "configured", true)
			return nil
		})

		_ = g.Wait()

		status, httpStatus := "ready", http.StatusOK
		if !ready {
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		}

		if err := utils.WriteJSON(w, httpStatus, map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}); err != nil {
			deps.Logger.Error("failed to write readiness response", zap.Error(err))
		}
	}
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"version":              deps.Config.Version,
			"environment":          deps.Config.Environment,
			"providers":            deps.ProviderRegistry.ListProviders(),
			"configured_providers": deps.ProviderRegistry.ConfiguredProviders(),
			"default_provider":     deps.Router.Default().Name(),
			"auth_enabled":         deps.AuthMiddleware != nil,
			"dispatch_log_enabled": deps.Dispatches != nil,
		}
		if deps.Audit != nil {
			response["dispatch_log"] = deps.Audit.GetStats()
		}
		_ = utils.WriteOK(w, response)
	}
}
