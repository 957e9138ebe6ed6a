package overlay

import (
	"image/color"

	"sentinelcam-go/internal/models"
)

// Context is the 2D drawing context of an overlay surface.
type Context interface {
	ClearRect(x, y, w, h float64)
	StrokeRect(x, y, w, h float64)
	FillText(text string, x, y float64)
	SetStrokeStyle(c color.RGBA)
	SetFillStyle(c color.RGBA)
	SetLineWidth(w float64)
	SetFontScale(s float64)
}

// Surface is a drawable layer rendered above the live preview.
type Surface interface {
	SetSize(width, height int)
	Size() (width, height int)
	Context2D() Context
}

// Binding holds the surface and its context once bind has run.
type Binding struct {
	Surface Surface
	Context Context
	Style   Style
}

// Width is the canvas width fixed at bind time
func (b *Binding) Width() float64 {
	w, _ := b.Surface.Size()
	return float64(w)
}

// Bind sizes the surface to the viewport and applies the drawing style. The
// canvas keeps this size for its lifetime; later viewport changes only affect
// the per-cycle scale factors. Binding again repeats the same setup.
func Bind(s Surface, vp models.Viewport, style Style) *Binding {
	if s == nil {
		return nil
	}
	s.SetSize(vp.Width, vp.Height)
	ctx := s.Context2D()
	ctx.SetStrokeStyle(style.StrokeColor)
	ctx.SetFillStyle(style.FillColor)
	ctx.SetLineWidth(style.LineWidth)
	ctx.SetFontScale(style.FontScale)
	return &Binding{Surface: s, Context: ctx, Style: style}
}
