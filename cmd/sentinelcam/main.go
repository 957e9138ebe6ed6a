package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog/log"

	"sentinelcam-go/internal/api"
	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/logging"
	"sentinelcam-go/internal/pipeline"
	"sentinelcam-go/internal/services"
	"sentinelcam-go/internal/services/display"
)

// OpenCV windows must be driven from the main OS thread
func init() { runtime.LockOSThread() }

func main() {
	// Load configuration
	cfg := config.Load()

	var (
		source   = flag.String("source", cfg.CaptureSource, "Capture source: camera or screen")
		device   = flag.String("device", cfg.CameraDevice, "Camera index, video file or stream URL")
		kind     = flag.String("model-kind", cfg.ModelKind, "Detection model: ssd or yolo")
		model    = flag.String("model", cfg.ModelPath, "Model weights path")
		headless = flag.Bool("headless", !cfg.DisplayEnabled, "Run without a preview window")
		apiOn    = flag.Bool("api", cfg.APIEnabled, "Serve the diagnostics API")
		level    = flag.String("log-level", cfg.LogLevel, "Log level")
	)
	flag.Parse()

	// Override config with command line args
	cfg.CaptureSource = *source
	cfg.CameraDevice = *device
	cfg.ModelKind = *kind
	cfg.ModelPath = *model
	cfg.DisplayEnabled = !*headless
	cfg.APIEnabled = *apiOn
	cfg.LogLevel = *level
	cfg.Validate()

	// Setup structured logging, optionally teed to logdy
	var extra []io.Writer
	if cfg.LogdyEnabled {
		if w, _, err := logging.StartLogdy(cfg); err != nil {
			log.Warn().Err(err).Msg("Logdy not started")
		} else {
			extra = append(extra, w)
		}
	}
	logging.Setup(cfg, extra...)

	log.Info().
		Str("device_id", cfg.DeviceID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Str("source", cfg.CaptureSource).
		Str("model_kind", cfg.ModelKind).
		Bool("display", cfg.DisplayEnabled).
		Msg("Starting SentinelCam")

	container, err := services.NewServiceContainer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create services")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := container.Start(ctx); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrPermissionDenied):
			log.Warn().Msg("Camera permission denied, staying idle until interrupted")
		case errors.Is(err, pipeline.ErrStopped):
			log.Info().Msg("Interrupted during startup")
		default:
			log.Fatal().Err(err).Msg("Failed to start pipeline")
		}
	}

	var server *api.Server
	if cfg.APIEnabled {
		server = api.NewServer(cfg, container.Pipeline)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("Diagnostics API failed")
			}
		}()
	}

	if cfg.DisplayEnabled && container.Pipeline.State() == pipeline.StateRunning {
		display.NewWindow(cfg, container.Platform, container.Source, container.Canvas, container.Pipeline).Run(ctx, stop)
	} else {
		<-ctx.Done()
	}

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Diagnostics API forced to shutdown")
		}
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Services forced to shutdown")
	} else {
		log.Info().Msg("Shutdown complete")
	}
}
