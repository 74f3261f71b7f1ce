package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/nexus-gateway/config"
	"github.com/upb/nexus-gateway/internal/observability"
	"github.com/upb/nexus-gateway/middleware"
	"github.com/upb/nexus-gateway/repositories"
	"github.com/upb/nexus-gateway/repositories/postgres"
	"github.com/upb/nexus-gateway/services/audit"
	"github.com/upb/nexus-gateway/services/catalog"
	"github.com/upb/nexus-gateway/services/generation"
	"github.com/upb/nexus-gateway/services/inference"
	"github.com/upb/nexus-gateway/services/providers"
	"github.com/upb/nexus-gateway/services/providers/azurecompat"
	"github.com/upb/nexus-gateway/services/providers/azureopenai"
	"github.com/upb/nexus-gateway/services/providers/gemini"
	"github.com/upb/nexus-gateway/services/routing"
)

// Provider names registered by the gateway
const (
	ProviderClaude   = "claude"
	ProviderDeepSeek = "deepseek"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Dispatch log; Dispatches and Audit are nil when no database is configured
	Dispatches repositories.DispatchRepository
	Audit      *audit.AuditService
	Recorder   audit.Recorder

	// Dispatch
	ProviderRegistry *providers.Registry
	Router           *routing.Router
	Inference        *inference.InferenceService
	Generation       *generation.GenerationService
	Catalog          *catalog.Catalog

	// Auth; nil when bearer auth is disabled
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewMetrics(),
		Recorder: audit.NopRecorder{},
		Catalog:  catalog.Default(),
	}

	if cfg.Database != nil {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	} else {
		logger.Info("DATABASE_URL not set, dispatch log disabled")
	}

	if err := deps.initDispatch(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects to PostgreSQL, prepares the schema and starts the audit workers
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.NewDB(ctx, *cfg.Database, d.Logger)
	if err != nil {
		return err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to prepare schema: %w", err)
	}

	d.DB = db
	d.Dispatches = postgres.NewDispatchRepository(db, d.Logger)

	d.Audit = audit.NewAuditService(d.Dispatches, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		db.Close()
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	d.Recorder = d.Audit

	d.Metrics.RegisterAuditStats(func() (int64, int64, int64) {
		stats := d.Audit.GetStats()
		return stats.Written, stats.Failed, stats.Dropped
	})

	return nil
}

// initDispatch builds the adapters, the router and the services on top of it
func (d *Dependencies) initDispatch(ctx context.Context, cfg *config.Config) error {
	registry, err := NewProviderRegistry(ctx, cfg.Providers, d.Logger)
	if err != nil {
		return err
	}

	router, err := routing.NewRouter(registry, routing.DefaultRules(azureopenai.ProviderName), azureopenai.ProviderName)
	if err != nil {
		return err
	}

	d.ProviderRegistry = registry
	d.Router = router
	d.Inference = inference.NewInferenceService(router, d.Recorder, d.Metrics, d.Logger)
	d.Generation = generation.NewGenerationService(d.Inference)
	return nil
}

// NewProviderRegistry registers one adapter per backend. Adapters without credentials
// are registered too; they fail with a configuration error only when selected.
func NewProviderRegistry(ctx context.Context, cfg config.ProvidersConfig, logger *zap.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	geminiAdapter, err := gemini.NewAdapter(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	adapters := []providers.Provider{
		azureopenai.NewAdapter(azureopenai.Config{
			Endpoint:   cfg.AzureOpenAI.Endpoint,
			APIKey:     cfg.AzureOpenAI.APIKey,
			Deployment: cfg.AzureOpenAI.Deployment,
			APIVersion: cfg.AzureOpenAI.APIVersion,
			Timeout:    cfg.Timeout,
		}),
		azurecompat.NewAdapter(azurecompat.Config{
			Name:       ProviderClaude,
			Endpoint:   cfg.Claude.Endpoint,
			APIKey:     cfg.Claude.APIKey,
			APIVersion: cfg.AzureOpenAI.APIVersion,
			Timeout:    cfg.Timeout,
		}),
		azurecompat.NewAdapter(azurecompat.Config{
			Name:       ProviderDeepSeek,
			Endpoint:   cfg.DeepSeek.Endpoint,
			APIKey:     cfg.DeepSeek.APIKey,
			APIVersion: cfg.AzureOpenAI.APIVersion,
			Timeout:    cfg.Timeout,
		}),
		geminiAdapter,
	}

	for _, adapter := range adapters {
		if err := registry.RegisterProvider(adapter); err != nil {
			return nil, err
		}
		if adapter.Configured() {
			logger.Info("provider registered", zap.String("provider", adapter.Name()))
		} else {
			logger.Warn("provider registered without credentials", zap.String("provider", adapter.Name()))
		}
	}

	if len(registry.ConfiguredProviders()) == 0 {
		logger.Warn("no LLM providers configured")
	}

	return registry, nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.AuthEnabled() {
		d.Logger.Info("AUTH_JWT_SECRET not set, API authentication disabled")
		return
	}
	validator := middleware.NewHMACTokenValidator(cfg.Auth.Secret, cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("bearer authentication enabled")
}

// Close stops the audit workers, then closes the database
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
