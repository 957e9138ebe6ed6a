package display

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/logging"
	"sentinelcam-go/internal/models"
	"sentinelcam-go/internal/services/overlay"
)

const (
	keyEsc = 27
	keyQ   = 'q'
)

// FrameSource is the part of a capture source the preview needs
type FrameSource interface {
	Latest() *models.Frame
}

// Window shows the live preview with the overlay composited on top.
// OpenCV's highgui must run on the main goroutine, so Run blocks the caller.
type Window struct {
	title    string
	interval time.Duration
	platform *Platform
	source   FrameSource
	canvas   *overlay.Canvas
	logger   zerolog.Logger

	stats     StatsSource
	showStats bool
	accent    color.RGBA
	fps       *fpsMeter
}

// NewWindow builds the preview. stats may be nil, which hides the panel.
func NewWindow(cfg *config.Config, platform *Platform, source FrameSource, canvas *overlay.Canvas, stats StatsSource) *Window {
	return &Window{
		title:     cfg.WindowTitle,
		interval:  cfg.FrameInterval(),
		platform:  platform,
		source:    source,
		canvas:    canvas,
		logger:    logging.NewServiceLogger(cfg, "display"),
		stats:     stats,
		showStats: cfg.ShowStats && stats != nil,
		accent:    overlay.StyleFromConfig(cfg.OverlayColor, cfg.OverlayLineWidth, cfg.OverlayFontScale).StrokeColor,
		fps:       newFPSMeter(30),
	}
}

// Run shows frames until ctx is done or the user presses ESC or q, in which
// case quit is called.
func (w *Window) Run(ctx context.Context, quit func()) {
	win := gocv.NewWindow(w.title)
	defer win.Close()

	vp := w.platform.Viewport()
	win.ResizeWindow(vp.Width, vp.Height)
	w.logger.Info().Int("width", vp.Width).Int("height", vp.Height).Msg("Preview window opened")

	view := gocv.NewMatWithSize(vp.Height, vp.Width, gocv.MatTypeCV8UC3)
	defer view.Close()

	var lastID int64 = -1
	var fps float64
	delay := int(w.interval / time.Millisecond)
	if delay < 1 {
		delay = 1
	}

	for ctx.Err() == nil {
		if f := w.source.Latest(); f != nil && f.ID != lastID {
			if err := w.render(f, vp, &view); err != nil {
				w.logger.Debug().Err(err).Int64("frame_id", f.ID).Msg("Preview render failed")
			} else {
				lastID = f.ID
				fps = w.fps.tick(time.Now())
			}
		}

		frame := view.Clone()
		w.canvas.Composite(&frame)
		if w.showStats {
			ready, err := w.stats.ModelStatus()
			drawStats(&frame, statsLines(w.source.Latest(), fps, w.stats.Stats(), ready, err, time.Now()), w.accent)
		}
		win.IMShow(frame)
		frame.Close()

		switch win.WaitKey(delay) {
		case keyEsc, keyQ:
			w.logger.Info().Msg("Preview closed by user")
			quit()
			return
		}
	}
}

// render scales the frame to the viewport and flips it when the preview is
// mirrored, writing the result into view
func (w *Window) render(f *models.Frame, vp models.Viewport, view *gocv.Mat) error {
	if !f.Valid() || f.Channels != 3 {
		return fmt.Errorf("cannot preview frame %dx%dx%d", f.Width, f.Height, f.Channels)
	}
	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data[:f.Width*f.Height*3])
	if err != nil {
		return err
	}
	defer src.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(src, &scaled, image.Pt(vp.Width, vp.Height), 0, 0, gocv.InterpolationLinear)

	if w.platform.Mirror() {
		gocv.Flip(scaled, view, 1)
		return nil
	}
	scaled.CopyTo(view)
	return nil
}
