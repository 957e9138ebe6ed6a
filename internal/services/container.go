package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/pipeline"
	"sentinelcam-go/internal/services/capture"
	"sentinelcam-go/internal/services/detection"
	"sentinelcam-go/internal/services/display"
	"sentinelcam-go/internal/services/notify"
	"sentinelcam-go/internal/services/overlay"
	"sentinelcam-go/internal/services/permission"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config     *config.Config
	Platform   *display.Platform
	Source     capture.Source
	Canvas     *overlay.Canvas
	Notifier   notify.Notifier
	Permission permission.Checker
	Pipeline   *pipeline.Pipeline

	notifySvc *notify.Service
}

// NewServiceContainer creates a new service container
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	source, err := capture.NewSource(cfg)
	if err != nil {
		return nil, err
	}

	sc := &ServiceContainer{
		Config:     cfg,
		Platform:   display.NewPlatform(cfg),
		Source:     source,
		Permission: permission.NewDeviceChecker(cfg),
		Notifier:   notify.Noop{},
	}

	if cfg.NotifyEnabled {
		sc.notifySvc = notify.NewService(cfg, nil)
		sc.Notifier = sc.notifySvc
	}

	sc.Pipeline = pipeline.New(cfg, pipeline.Deps{
		Loader:     detection.NewLoader(cfg),
		Source:     source,
		Notifier:   sc.Notifier,
		Permission: sc.Permission,
		Viewport:   sc.Platform.Viewport,
		Mirror:     sc.Platform.Mirror,
		Scheduler:  pipeline.NewTickerScheduler(cfg.FrameInterval()),
	})

	if cfg.DisplayEnabled {
		sc.Canvas = overlay.NewCanvas()
		sc.Pipeline.BindSurface(sc.Canvas)
	}

	return sc, nil
}

// Start starts capture and then the pipeline. A denied camera permission
// leaves the capture source closed and returns pipeline.ErrPermissionDenied.
func (sc *ServiceContainer) Start(ctx context.Context) error {
	status, err := sc.Permission.Request(ctx)
	if err != nil {
		return fmt.Errorf("request camera permission: %w", err)
	}
	if status != permission.StatusGranted {
		return pipeline.ErrPermissionDenied
	}

	if err := sc.Source.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	if err := sc.Pipeline.Start(ctx); err != nil {
		sc.Source.Close()
		return err
	}
	return nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc.Pipeline.Stop()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.New("timed out stopping pipeline")
	}

	var errs []error
	if err := sc.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture: %w", err))
	}
	if sc.notifySvc != nil {
		sc.notifySvc.Close()
	}
	if sc.Canvas != nil {
		sc.Canvas.Close()
	}

	log.Info().Msg("All services shut down")
	return errors.Join(errs...)
}
