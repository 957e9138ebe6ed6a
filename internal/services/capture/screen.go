package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vova616/screenshot"
	"gocv.io/x/gocv"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/logging"
	"sentinelcam-go/internal/models"
)

// screenFPSCap keeps screen grabs from saturating a core
const screenFPSCap = 15

// ScreenSource captures the primary display. Useful for demos on machines
// without a camera.
type ScreenSource struct {
	cfg  *config.Config
	slot Slot

	frameID atomic.Int64
	grab    func() (*image.RGBA, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger zerolog.Logger
}

func NewScreenSource(cfg *config.Config) *ScreenSource {
	return &ScreenSource{
		cfg:    cfg,
		grab:   screenshot.CaptureScreen,
		logger: logging.NewServiceLogger(cfg, "capture").With().Str("device", "screen").Logger(),
	}
}

func (s *ScreenSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("screen source already started")
	}

	rect, err := screenshot.ScreenRect()
	if err != nil {
		return fmt.Errorf("failed to query screen: %w", err)
	}
	s.logger.Info().Int("width", rect.Dx()).Int("height", rect.Dy()).Msg("Capturing screen")

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
	return nil
}

func (s *ScreenSource) Next() (*models.Frame, bool) { return s.slot.Next() }

func (s *ScreenSource) Latest() *models.Frame { return s.slot.Latest() }

func (s *ScreenSource) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *ScreenSource) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic in screen capture")
		}
	}()

	fps := s.cfg.DisplayFPS
	if fps <= 0 || fps > screenFPSCap {
		fps = screenFPSCap
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := s.capture()
		if err != nil {
			failures++
			if failures == 1 || failures%100 == 0 {
				s.logger.Warn().Err(err).Int("failures", failures).Msg("Screen capture failed")
			}
			continue
		}
		failures = 0
		s.slot.Put(frame)
	}
}

func (s *ScreenSource) capture() (*models.Frame, error) {
	img, err := s.grab()
	if err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert screen image: %w", err)
	}
	defer mat.Close()

	if w, h := s.cfg.CaptureWidth, s.cfg.CaptureHeight; w > 0 && h > 0 && (mat.Cols() != w || mat.Rows() != h) {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
		return matToFrame(resized, s.frameID.Add(1), "screen"), nil
	}
	return matToFrame(mat, s.frameID.Add(1), "screen"), nil
}
