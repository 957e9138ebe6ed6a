package overlay

import (
	"sentinelcam-go/internal/models"
)

// LabelOffset is how far up and left of the box corner a label is drawn
const LabelOffset = 5.0

// Rect is a box in screen space
type Rect struct {
	X, Y, W, H float64
}

// Projection maps frame pixels onto the bound canvas for one cycle.
type Projection struct {
	ScaleWidth  float64
	ScaleHeight float64
	Mirror      bool
	CanvasWidth float64
}

// NewProjection derives scale factors from the cycle's viewport and frame
// dimensions. A frame without size yields zero scales, which collapses every
// box to the origin rather than dividing by zero.
func NewProjection(vp models.Viewport, frameWidth, frameHeight int, mirror bool, canvasWidth float64) Projection {
	p := Projection{Mirror: mirror, CanvasWidth: canvasWidth}
	if frameWidth > 0 {
		p.ScaleWidth = float64(vp.Width) / float64(frameWidth)
	}
	if frameHeight > 0 {
		p.ScaleHeight = float64(vp.Height) / float64(frameHeight)
	}
	return p
}

// Project maps a frame-space box to screen space. Only the horizontal axis is
// ever mirrored.
func (p Projection) Project(b models.BBox) Rect {
	w := b.Width * p.ScaleWidth
	h := b.Height * p.ScaleHeight
	x := b.X * p.ScaleWidth
	if p.Mirror {
		x = p.CanvasWidth - (b.X+b.Width)*p.ScaleWidth
	}
	return Rect{X: x, Y: b.Y * p.ScaleHeight, W: w, H: h}
}

// LabelAnchor is where a detection's class label is drawn for a box
func LabelAnchor(r Rect) (float64, float64) {
	return r.X - LabelOffset, r.Y - LabelOffset
}

// Draw clears the whole viewport area and renders every detection. An empty
// list still clears, leaving a blank overlay.
func Draw(b *Binding, vp models.Viewport, p Projection, detections []models.Detection) int {
	b.Context.ClearRect(0, 0, float64(vp.Width), float64(vp.Height))
	for _, det := range detections {
		r := p.Project(det.BBox)
		b.Context.StrokeRect(r.X, r.Y, r.W, r.H)
		lx, ly := LabelAnchor(r)
		b.Context.FillText(det.Class, lx, ly)
	}
	return len(detections)
}
