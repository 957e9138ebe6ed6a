package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/pipeline"
)

// PipelineStatus is the read-only view of the pipeline the API reports on
type PipelineStatus interface {
	State() pipeline.State
	Stats() pipeline.StatsSnapshot
	ModelStatus() (bool, error)
	RunID() string
}

type HealthHandler struct {
	cfg    *config.Config
	status PipelineStatus
}

func NewHealthHandler(cfg *config.Config, status PipelineStatus) *HealthHandler {
	return &HealthHandler{cfg: cfg, status: status}
}

type HealthResponse struct {
	Status        string `json:"status" example:"healthy"`
	DeviceID      string `json:"device_id" example:"pixel-7"`
	PipelineState string `json:"pipeline_state" example:"running"`
	ModelReady    bool   `json:"model_ready"`
	ModelError    string `json:"model_error,omitempty"`
	RunID         string `json:"run_id,omitempty"`
}

type DeviceInfoResponse struct {
	DeviceID     string   `json:"device_id" example:"pixel-7"`
	Version      string   `json:"version" example:"1.0.0"`
	Environment  string   `json:"environment" example:"development"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Report pipeline state and model readiness
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	state := h.status.State()
	ready, err := h.status.ModelStatus()

	resp := HealthResponse{
		Status:        "healthy",
		DeviceID:      h.cfg.DeviceID,
		PipelineState: state.String(),
		ModelReady:    ready,
		RunID:         h.status.RunID(),
	}
	if err != nil {
		resp.ModelError = err.Error()
	}

	code := http.StatusOK
	switch {
	case state != pipeline.StateRunning:
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	case !ready:
		resp.Status = "degraded"
	}
	c.JSON(code, resp)
}

// @Summary Device information
// @Description Get basic device information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} DeviceInfoResponse
// @Router / [get]
func (h *HealthHandler) DeviceInfo(c *gin.Context) {
	caps := []string{"object_detection", "overlay"}
	if h.cfg.NotifyEnabled {
		caps = append(caps, "sound_alert", "vibration_alert")
	}
	c.JSON(http.StatusOK, DeviceInfoResponse{
		DeviceID:     h.cfg.DeviceID,
		Version:      h.cfg.Version,
		Environment:  h.cfg.Environment,
		Capabilities: caps,
	})
}
