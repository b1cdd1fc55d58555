package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/infra/config"
	"github.com/arklim/approval-gate/internal/transport/http/handlers"
	"github.com/arklim/approval-gate/internal/transport/http/middleware"
	"github.com/arklim/approval-gate/internal/transport/telegram"
	"github.com/arklim/approval-gate/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Registry  *usecase.RegistryService
	Lifecycle *usecase.LifecycleService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Webhook  *telegram.WebhookHandler
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Config.Telemetry.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")
	api.Use(middleware.RequireAPIKey(deps.Config.Auth.APIKey))
	{
		authGroup := api.Group("/auth")
		requestHandler := handlers.NewAuthRequestHandler(deps.Services.Lifecycle)
		requestHandler.RegisterRoutes(authGroup)

		clientGroup := api.Group("/client")
		clientHandler := handlers.NewClientHandler(deps.Services.Registry)
		clientHandler.RegisterRoutes(clientGroup)
	}

	if deps.Webhook != nil {
		// The webhook authenticates with the Bot API secret token header
		// rather than the API key.
		tg := r.Group("/telegram")
		deps.Webhook.RegisterRoutes(tg)
	}

	return r
}
