package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sentinelcam-go/internal/pipeline"
)

type PipelineHandler struct {
	status PipelineStatus
}

func NewPipelineHandler(status PipelineStatus) *PipelineHandler {
	return &PipelineHandler{status: status}
}

type PipelineStatsResponse struct {
	Success   bool                   `json:"success"`
	RunID     string                 `json:"run_id,omitempty"`
	State     string                 `json:"state"`
	Stats     pipeline.StatsSnapshot `json:"stats"`
	Timestamp int64                  `json:"timestamp"`
}

// @Summary Get pipeline stats
// @Description Get frame pipeline counters
// @Tags pipeline
// @Produce json
// @Success 200 {object} PipelineStatsResponse
// @Router /pipeline/stats [get]
func (h *PipelineHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, PipelineStatsResponse{
		Success:   true,
		RunID:     h.status.RunID(),
		State:     h.status.State().String(),
		Stats:     h.status.Stats(),
		Timestamp: time.Now().Unix(),
	})
}
