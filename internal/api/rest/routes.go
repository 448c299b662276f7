package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sunupay/subscription-service/internal/api/rest/handlers"
	"github.com/sunupay/subscription-service/internal/api/rest/middleware"
	"github.com/sunupay/subscription-service/internal/gateway"
	"github.com/sunupay/subscription-service/internal/metrics"
	"github.com/sunupay/subscription-service/internal/service"
	"github.com/sunupay/subscription-service/pkg/logger"
)

// SetupRouter wires the gin router with routes and middleware
func SetupRouter(
	svc service.SubscriptionService,
	verifiers []gateway.Verifier,
	m metrics.SubscriptionMetrics,
	registry *prometheus.Registry,
	log *logger.Logger,
) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	r.GET("/health", handlers.HealthCheck)

	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	subscriptionHandler := handlers.NewSubscriptionHandler(svc, log)
	webhookHandler := handlers.NewWebhookHandler(svc, m, log)

	v1 := r.Group("/api/v1")
	{
		subscriptions := v1.Group("/subscriptions")
		subscriptions.Use(middleware.RequireUser())
		{
			subscriptions.POST("/initiate", subscriptionHandler.InitiateSubscription)
			// The :id segment is a user id for status and history, and a
			// subscription id for cancel. Gin requires one shared name.
			subscriptions.GET("/:id/status", subscriptionHandler.GetStatus)
			subscriptions.GET("/:id/history", subscriptionHandler.GetHistory)
			subscriptions.POST("/:id/cancel", subscriptionHandler.CancelSubscription)
		}
	}

	// Gateway callbacks authenticate themselves, no user identity here
	webhooks := r.Group("/webhooks")
	{
		for _, verifier := range verifiers {
			webhooks.POST("/"+verifier.Name(), webhookHandler.Handle(verifier))
		}
	}

	return r
}
