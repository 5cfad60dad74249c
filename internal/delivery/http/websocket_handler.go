package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shcorya/distributed-workers/internal/domain"
	"github.com/shcorya/distributed-workers/internal/usecase"
)

const (
	defaultStreamInterval = 500 * time.Millisecond

	// writeWait bounds each frame write. The hijacked connection would
	// otherwise keep the server's WriteTimeout deadline.
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams job status updates over a WebSocket.
type WebSocketHandler struct {
	getJobUC *usecase.GetJobUsecase
	interval time.Duration
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler polling every interval.
func NewWebSocketHandler(getJobUC *usecase.GetJobUsecase, interval time.Duration, logger *zap.Logger) *WebSocketHandler {
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	return &WebSocketHandler{
		getJobUC: getJobUC,
		interval: interval,
		logger:   logger,
	}
}

// Stream handles GET /:id/stream (WebSocket upgrade). It pushes the job
// status on every tick and closes once the job has completed or is unknown.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id, err := domain.ParseJobID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	jobID := zap.Uint64("job_id", uint64(id))
	h.logger.Debug("WebSocket connection opened", jobID)

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		status, err := h.getJobUC.Execute(ctx, id)
		if err != nil {
			msg := "Could not look up job"
			if errors.Is(err, domain.ErrJobNotFound) {
				msg = "Job not found"
			}
			_ = writeJSON(conn, gin.H{"error": msg})
			return
		}

		if err := writeJSON(conn, status.Body()); err != nil {
			h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			return
		}

		if status.Completed() {
			h.logger.Debug("Job completed, closing WebSocket", jobID)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
