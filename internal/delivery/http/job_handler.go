package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/delivery/http/middleware"
	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/usecase"
)

// JobHandler handles job submission and status requests.
type JobHandler struct {
	submitUC *usecase.SubmitJobUsecase
	getJobUC *usecase.GetJobUsecase
	logger   *zap.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(submitUC *usecase.SubmitJobUsecase, getJobUC *usecase.GetJobUsecase, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		submitUC: submitUC,
		getJobUC: getJobUC,
		logger:   logger,
	}
}

// Submit handles POST /
func (h *JobHandler) Submit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read request body"})
		return
	}

	id, err := h.submitUC.Execute(c.Request.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be valid JSON"})
		default:
			h.logger.Error("Submit job failed",
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not queue job"})
		}
		return
	}

	c.String(http.StatusOK, fmt.Sprintf("added job %d to queue", id))
}

// GetByID handles GET /:id
func (h *JobHandler) GetByID(c *gin.Context) {
	id, err := domain.ParseJobID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	status, err := h.getJobUC.Execute(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Get job failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Uint64("job_id", uint64(id)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not look up job"})
		return
	}

	c.JSON(http.StatusOK, status.Body())
}

// MethodNotAllowed answers requests whose path exists under another method.
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}

// NotFound answers requests for unknown paths.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}
