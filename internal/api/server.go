package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"sentinelcam-go/internal/api/handlers"
	"sentinelcam-go/internal/config"
)

// Server is the local diagnostics API. It only reports on the process and
// never carries detections anywhere.
type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler   *handlers.HealthHandler
	systemHandler   *handlers.SystemHandler
	pipelineHandler *handlers.PipelineHandler
}

func NewServer(cfg *config.Config, status handlers.PipelineStatus) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:          cfg,
		router:          gin.New(),
		healthHandler:   handlers.NewHealthHandler(cfg, status),
		systemHandler:   handlers.NewSystemHandler(cfg.DeviceID),
		pipelineHandler: handlers.NewPipelineHandler(status),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().Int("port", s.config.APIPort).Msg("Starting diagnostics API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping diagnostics API")
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}
