package router

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/genomics-pipeline/internal/api/handler"
	"github.com/gin-gonic/gin"
)

func newEngine(logger *slog.Logger, service string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": service,
		})
	})

	return r
}

// SetupRouter configures the public API router
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := newEngine(deps.Logger, deps.ServiceName)

	jobHandler := handler.NewJobHandler(deps)
	userHandler := handler.NewUserHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Record an uploaded input as a job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List a user's jobs
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/log - Get the annotation log
			jobs.GET("/:job_id/log", jobHandler.GetJobLog)

			// GET /api/v1/jobs/:job_id/result - Download the annotated result
			jobs.GET("/:job_id/result", jobHandler.GetJobResult)

			// GET /api/v1/jobs/:job_id/input - Download the uploaded input
			jobs.GET("/:job_id/input", jobHandler.GetJobInput)
		}

		users := v1.Group("/users")
		{
			// POST /api/v1/users/:user_id/upgrade - Move a user to premium
			users.POST("/:user_id/upgrade", userHandler.Upgrade)
		}
	}

	return r
}

// SetupWebhookRouter configures the push endpoints of the worker and thaw
// services. Endpoints whose collaborators are nil are not registered.
func SetupWebhookRouter(deps *handler.WebhookDependencies) *gin.Engine {
	r := newEngine(deps.Logger, deps.ServiceName)

	webhookHandler := handler.NewWebhookHandler(deps)

	if deps.JobRequests != nil {
		r.POST("/process-job-request", webhookHandler.ProcessJobRequest)
	}
	if deps.Restores != nil || deps.Completer != nil {
		r.POST("/restore", webhookHandler.Restore)
	}

	return r
}
