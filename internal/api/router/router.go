package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/michaeladamstrickland/Convexa-sub009/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "convexa-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	subscriptionHandler := handler.NewSubscriptionHandler(deps)
	deliveryHandler := handler.NewDeliveryHandler(deps)
	metricsHandler := handler.NewMetricsHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs/ingest - Enqueue a scrape ingestion job
			jobs.POST("/ingest", jobHandler.CreateIngestJob)

			// POST /api/v1/jobs/matchmake - Enqueue a matchmaking run
			jobs.POST("/matchmake", jobHandler.CreateMatchmakingJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		webhooks := v1.Group("/webhooks")
		{
			subscriptions := webhooks.Group("/subscriptions")
			{
				subscriptions.POST("", subscriptionHandler.CreateSubscription)
				subscriptions.GET("", subscriptionHandler.ListSubscriptions)
				subscriptions.GET("/:subscription_id", subscriptionHandler.GetSubscription)
				subscriptions.PUT("/:subscription_id", subscriptionHandler.UpdateSubscription)
				subscriptions.DELETE("/:subscription_id", subscriptionHandler.DeleteSubscription)

				// POST a signed one-off challenge to the endpoint
				subscriptions.POST("/:subscription_id/verify", subscriptionHandler.VerifySubscription)
			}

			// POST /api/v1/webhooks/verify - Challenge an endpoint before subscribing
			webhooks.POST("/verify", subscriptionHandler.VerifyEndpoint)

			// GET /api/v1/webhooks/deliveries - Delivery ledger history
			webhooks.GET("/deliveries", deliveryHandler.ListDeliveries)

			deadLetters := webhooks.Group("/dead-letters")
			{
				deadLetters.GET("", deliveryHandler.ListDeadLetters)
				deadLetters.POST("/replay", deliveryHandler.BulkReplayDeadLetters)
				deadLetters.POST("/:dead_letter_id/replay", deliveryHandler.ReplayDeadLetter)
			}
		}

		// GET /api/v1/metrics - Pipeline counters and latency percentiles
		v1.GET("/metrics", metricsHandler.GetMetrics)
	}

	return r
}
