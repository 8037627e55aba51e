package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/internal/service/intel"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

type BatchHandler struct {
	pipeline intel.Pipeline
	logger   logger.Logger
}

func NewBatchHandler(pipeline intel.Pipeline, log logger.Logger) *BatchHandler {
	return &BatchHandler{pipeline: pipeline, logger: log}
}

// SubmitBatchRequest schedules a group of already-submitted documents.
type SubmitBatchRequest struct {
	DocumentIDs []string `json:"documentIds" binding:"required,min=1"`
	Priority    int      `json:"priority"`
}

// Submit handles POST /batches.
func (h *BatchHandler) Submit(c *gin.Context) {
	var req SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Priority == 0 {
		req.Priority = 5
	}

	batchID, err := h.pipeline.SubmitBatch(c.Request.Context(), req.DocumentIDs, req.Priority)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			h.handleError(c, http.StatusBadRequest, "Invalid batch", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to submit batch", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batchId":   batchID,
		"documents": len(req.DocumentIDs),
	})
}

// GetStatus handles GET /batches/:batchId.
func (h *BatchHandler) GetStatus(c *gin.Context) {
	batchID := c.Param("batchId")
	if batchID == "" {
		h.handleError(c, http.StatusBadRequest, "Batch ID is required", nil)
		return
	}

	batch, err := h.pipeline.GetBatchStatus(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Batch not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get batch status", err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// Cancel handles DELETE /batches/:batchId.
func (h *BatchHandler) Cancel(c *gin.Context) {
	batchID := c.Param("batchId")
	if batchID == "" {
		h.handleError(c, http.StatusBadRequest, "Batch ID is required", nil)
		return
	}

	if err := h.pipeline.CancelBatch(c.Request.Context(), batchID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Batch not found", err)
			return
		}
		if errors.Is(err, models.ErrInvalidInput) {
			h.handleError(c, http.StatusConflict, "Batch is not cancellable", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to cancel batch", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Batch cancelled",
		"batchId": batchID,
	})
}

func (h *BatchHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
