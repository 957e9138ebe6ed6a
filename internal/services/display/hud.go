package display

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"sentinelcam-go/internal/models"
	"sentinelcam-go/internal/pipeline"
	"sentinelcam-go/internal/services/overlay"
)

// StatsSource is the pipeline view the stats panel reads from
type StatsSource interface {
	Stats() pipeline.StatsSnapshot
	ModelStatus() (bool, error)
}

// fpsMeter measures preview FPS over a rolling window of frame times
type fpsMeter struct {
	window int
	times  []time.Time
}

func newFPSMeter(window int) *fpsMeter {
	return &fpsMeter{window: window}
}

func (m *fpsMeter) tick(now time.Time) float64 {
	m.times = append(m.times, now)
	if len(m.times) > m.window {
		m.times = m.times[1:]
	}
	if len(m.times) < 2 {
		return 0
	}
	span := m.times[len(m.times)-1].Sub(m.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(m.times)-1) / span
}

// statsLines formats the panel text
func statsLines(f *models.Frame, fps float64, stats pipeline.StatsSnapshot, modelReady bool, modelErr error, now time.Time) []string {
	var lines []string

	if f != nil {
		lines = append(lines, fmt.Sprintf("Frame: #%d", f.ID))
		lines = append(lines, fmt.Sprintf("Resolution: %dx%d", f.Width, f.Height))
	}
	if fps > 0 {
		lines = append(lines, fmt.Sprintf("FPS: %.1f", fps))
	} else {
		lines = append(lines, "FPS: --.-")
	}

	switch {
	case modelReady:
		lines = append(lines, fmt.Sprintf("Model: ready (%d inferences)", stats.Inferences))
	case modelErr != nil:
		lines = append(lines, "Model: error")
	default:
		lines = append(lines, "Model: loading")
	}

	lines = append(lines, fmt.Sprintf("Draws: %d  Alerts: %d", stats.Draws, stats.Notifications))
	if stats.InferenceFailures > 0 {
		lines = append(lines, fmt.Sprintf("Failures: %d", stats.InferenceFailures))
	}
	lines = append(lines, fmt.Sprintf("Time: %s", now.Format("15:04:05")))
	return lines
}

// drawStats renders the panel in the bottom left corner of mat
func drawStats(mat *gocv.Mat, lines []string, accent color.RGBA) {
	if mat == nil || mat.Empty() || len(lines) == 0 {
		return
	}

	fontFace := gocv.FontHersheySimplex
	fontScale := 0.6
	thickness := 2
	lineHeight := 25
	padding := 10

	maxTextWidth := 0
	for _, line := range lines {
		if size := gocv.GetTextSize(line, fontFace, fontScale, thickness); size.X > maxTextWidth {
			maxTextWidth = size.X
		}
	}

	startY := mat.Rows() - (len(lines)*lineHeight + padding*2)
	if startY < padding*2 {
		startY = padding * 2
	}
	bg := color.RGBA{R: 0, G: 0, B: 0, A: 180}
	gocv.Rectangle(mat, image.Rect(5, startY-padding, maxTextWidth+padding*2+5, startY+len(lines)*lineHeight+padding), bg, -1)

	// Keep text readable on the dark panel
	textColor := accent
	if overlay.IsDark(accent) {
		textColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	for i, line := range lines {
		gocv.PutText(mat, line, image.Pt(padding+5, startY+(i*lineHeight)+20), fontFace, fontScale, textColor, thickness)
	}
}
