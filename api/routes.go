package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imsportal/filingstack/api/handlers"
	"github.com/imsportal/filingstack/api/middleware"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/repository"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/services"
)

const APIKeyHeader = "X-IMS-PORTAL-API-KEY"

type RouteConfig struct {
	// Comma separated list of accepted API keys.
	APIKey    string
	AppSource string
	// Metrics are served from this gatherer. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, cfg RouteConfig, s *services.Services, repos *repository.Repositories, processor interfaces.EmailProcessor) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	apiHandlers := handlers.InitHandlers(repos, s, processor)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Health, status and metrics (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(processor))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:   APIKeyHeader,
		ValidAPIKeys: strings.Split(cfg.APIKey, ","),
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(cfg.AppSource))
	api.Use(middleware.TracingMiddleware())
	{
		instances := api.Group("/instances")
		{
			instances.POST("", apiHandlers.Instances.Create())
			instances.GET("", apiHandlers.Instances.List())
			instances.GET("/:id", apiHandlers.Instances.Get())
			instances.PATCH("/:id", apiHandlers.Instances.Update())

			instances.GET("/:id/email-configurations", apiHandlers.EmailConfigurations.List())
			instances.POST("/:id/email-configurations", apiHandlers.EmailConfigurations.Create())

			instances.POST("/:id/process", apiHandlers.Processing.ProcessNow())
			instances.GET("/:id/processing-logs", apiHandlers.Processing.ListLogs())
		}

		configurations := api.Group("/email-configurations")
		{
			configurations.PUT("/:id", apiHandlers.EmailConfigurations.Replace())
			configurations.DELETE("/:id", apiHandlers.EmailConfigurations.Delete())
			configurations.POST("/:id/test", apiHandlers.EmailConfigurations.TestConnection())
		}

		// Message ids may contain reserved characters and must be path escaped.
		api.POST("/processing-logs/:messageId/retry", apiHandlers.Processing.Retry())
	}
}
