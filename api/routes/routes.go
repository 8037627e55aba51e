package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/legal-intel/api/handlers"
	"github.com/feichai0017/legal-intel/api/middleware"
)

// SetupRoutes wires all API routes.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	docs := v1.Group("/documents")
	{
		docs.POST("", h.Document.Submit)
		docs.GET("/:documentId/result", h.Document.GetResult)
		docs.POST("/similar", h.Document.FindSimilar)
	}

	batches := v1.Group("/batches")
	{
		batches.POST("", h.Batch.Submit)
		batches.GET("/:batchId", h.Batch.GetStatus)
		batches.DELETE("/:batchId", h.Batch.Cancel)
	}
}
