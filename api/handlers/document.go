package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/internal/service/intel"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

type DocumentHandler struct {
	pipeline intel.Pipeline
	logger   logger.Logger
}

func NewDocumentHandler(pipeline intel.Pipeline, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{pipeline: pipeline, logger: log}
}

// SubmitRequest enqueues a document for processing. ID is optional;
// resubmitting the same ID is a no-op returning the original document.
type SubmitRequest struct {
	ID      string `json:"id"`
	Content string `json:"content" binding:"required"`
}

// SimilarRequest asks for nearest documents by id or raw text.
type SimilarRequest struct {
	DocumentID string  `json:"documentId"`
	Text       string  `json:"text"`
	TopK       int     `json:"topK"`
	Threshold  float64 `json:"threshold"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// Submit handles POST /documents.
func (h *DocumentHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	docID, created, err := h.pipeline.Submit(c.Request.Context(), req.ID, req.Content)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to submit document", err)
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"documentId": docID,
		"created":    created,
	})
}

// GetResult handles GET /documents/:documentId/result.
func (h *DocumentHandler) GetResult(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	view, err := h.pipeline.GetResult(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.handleError(c, http.StatusNotFound, "Document not found", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to get result", err)
		return
	}

	if view.Status == intel.ResultPending {
		c.JSON(http.StatusAccepted, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// FindSimilar handles POST /documents/similar.
func (h *DocumentHandler) FindSimilar(c *gin.Context) {
	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	matches, err := h.pipeline.FindSimilar(c.Request.Context(), &intel.SimilarQuery{
		DocumentID: req.DocumentID,
		Text:       req.Text,
		TopK:       req.TopK,
		Threshold:  req.Threshold,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			h.handleError(c, http.StatusBadRequest, "Invalid similarity query", err)
			return
		}
		h.handleError(c, http.StatusInternalServerError, "Failed to search similar documents", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"count":   len(matches),
	})
}

// handleError logs and writes a uniform error response.
func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
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
