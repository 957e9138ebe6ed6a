package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/logging"
	"sentinelcam-go/internal/models"
)

const maxConsecutiveErrors = 10

// CameraSource reads frames from a camera index, a video file or a stream URL
type CameraSource struct {
	cfg    *config.Config
	device string
	slot   Slot

	frameID    atomic.Int64
	reconnects atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger zerolog.Logger
}

func NewCameraSource(cfg *config.Config) *CameraSource {
	return &CameraSource{
		cfg:    cfg,
		device: cfg.CameraDevice,
		logger: logging.NewServiceLogger(cfg, "capture").With().Str("device", cfg.CameraDevice).Logger(),
	}
}

// Start opens the device and begins reading in the background. The first
// open is synchronous so a missing camera is reported to the caller.
func (c *CameraSource) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("camera source already started")
	}

	vc, err := c.open()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx, vc)
	return nil
}

func (c *CameraSource) Next() (*models.Frame, bool) { return c.slot.Next() }

func (c *CameraSource) Latest() *models.Frame { return c.slot.Latest() }

// Reconnects returns how many times the device has been reopened
func (c *CameraSource) Reconnects() int64 { return c.reconnects.Load() }

func (c *CameraSource) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownTimeout):
		c.logger.Warn().Msg("Timeout waiting for capture reader to stop")
	}
	return nil
}

func (c *CameraSource) open() (*gocv.VideoCapture, error) {
	var target interface{} = c.device
	if idx, err := strconv.Atoi(c.device); err == nil {
		target = idx
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device %s: %w", c.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture device %s is not opened", c.device)
	}

	if c.cfg.CaptureWidth > 0 && c.cfg.CaptureHeight > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.CaptureWidth))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.CaptureHeight))
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	c.logger.Info().
		Float64("actual_fps", vc.Get(gocv.VideoCaptureFPS)).
		Float64("actual_width", vc.Get(gocv.VideoCaptureFrameWidth)).
		Float64("actual_height", vc.Get(gocv.VideoCaptureFrameHeight)).
		Msg("VideoCapture opened")
	return vc, nil
}

// run reads until cancelled, reopening the device with backoff whenever the
// reader gives up
func (c *CameraSource) run(ctx context.Context, vc *gocv.VideoCapture) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("device", c.device).Msg("Recovered from panic in capture reader")
		}
	}()

	attempt := 0
	for {
		if vc != nil {
			err := c.readLoop(ctx, vc)
			vc.Close()
			vc = nil
			if ctx.Err() != nil {
				c.logger.Info().Msg("Capture reader stopped")
				return
			}
			c.logger.Warn().Err(err).Msg("Capture reader failed, reconnecting")
		}

		if c.cfg.MaxRetries > 0 && attempt >= c.cfg.MaxRetries {
			c.logger.Error().Int("attempts", attempt).Msg("Giving up on capture device")
			return
		}

		delay := CalculateBackoffDelay(c.cfg, attempt)
		c.logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("Reopening capture device")
		if !sleepCtx(ctx, delay) {
			return
		}
		attempt++

		reopened, err := c.open()
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Reopen failed")
			continue
		}
		c.reconnects.Add(1)
		attempt = 0
		vc = reopened
	}
}

func (c *CameraSource) readLoop(ctx context.Context, vc *gocv.VideoCapture) error {
	img := gocv.NewMat()
	defer img.Close()

	interval := c.cfg.FrameInterval()
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		started := time.Now()
		if ok := vc.Read(&img); !ok || img.Empty() {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("too many consecutive read errors (%d)", consecutiveErrors)
			}

			delay := time.Duration(consecutiveErrors*50) * time.Millisecond
			if delay > 2*time.Second {
				delay = 2 * time.Second
			}
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		consecutiveErrors = 0

		frame, err := c.toFrame(img)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Dropped frame")
			continue
		}
		c.slot.Put(frame)

		if !sleepCtx(ctx, interval-time.Since(started)) {
			return ctx.Err()
		}
	}
}

func (c *CameraSource) toFrame(img gocv.Mat) (*models.Frame, error) {
	bgr := gocv.NewMat()
	defer bgr.Close()

	switch img.Channels() {
	case 3:
		img.CopyTo(&bgr)
	case 4:
		gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)
	case 1:
		gocv.CvtColor(img, &bgr, gocv.ColorGrayToBGR)
	default:
		return nil, fmt.Errorf("unsupported channel count %d", img.Channels())
	}

	if w, h := c.cfg.CaptureWidth, c.cfg.CaptureHeight; w > 0 && h > 0 && (bgr.Cols() != w || bgr.Rows() != h) {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(bgr, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
		return matToFrame(resized, c.frameID.Add(1), c.device), nil
	}
	return matToFrame(bgr, c.frameID.Add(1), c.device), nil
}

func matToFrame(m gocv.Mat, id int64, source string) *models.Frame {
	return &models.Frame{
		ID:         id,
		Data:       m.ToBytes(),
		Width:      m.Cols(),
		Height:     m.Rows(),
		Channels:   m.Channels(),
		CapturedAt: time.Now(),
		Source:     source,
	}
}
