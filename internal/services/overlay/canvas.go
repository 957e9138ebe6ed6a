package overlay

import (
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

var transparent = gocv.NewScalar(0, 0, 0, 0)

// Canvas is a transparent BGRA overlay backed by a gocv Mat. Drawing goes to
// a back buffer; Present publishes it so Composite never shows a half drawn
// cycle.
type Canvas struct {
	mu        sync.Mutex
	back      gocv.Mat
	front     gocv.Mat
	width     int
	height    int
	stroke    color.RGBA
	fill      color.RGBA
	lineWidth float64
	fontScale float64
}

func NewCanvas() *Canvas {
	return &Canvas{
		back:      gocv.NewMat(),
		front:     gocv.NewMat(),
		stroke:    Red,
		fill:      Red,
		lineWidth: 1,
		fontScale: 0.6,
	}
}

func (c *Canvas) SetSize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if width <= 0 || height <= 0 {
		return
	}
	c.back.Close()
	c.front.Close()
	c.back = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC4)
	c.back.SetTo(transparent)
	c.front = c.back.Clone()
	c.width, c.height = width, height
}

func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

func (c *Canvas) Context2D() Context {
	return c
}

func (c *Canvas) SetStrokeStyle(col color.RGBA) {
	c.mu.Lock()
	c.stroke = col
	c.mu.Unlock()
}

func (c *Canvas) SetFillStyle(col color.RGBA) {
	c.mu.Lock()
	c.fill = col
	c.mu.Unlock()
}

func (c *Canvas) SetLineWidth(w float64) {
	c.mu.Lock()
	c.lineWidth = w
	c.mu.Unlock()
}

func (c *Canvas) SetFontScale(s float64) {
	c.mu.Lock()
	c.fontScale = s
	c.mu.Unlock()
}

func (c *Canvas) ClearRect(x, y, w, h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.clip(rectFrom(x, y, w, h))
	if r.Empty() {
		return
	}
	region := c.back.Region(r)
	region.SetTo(transparent)
	region.Close()
}

func (c *Canvas) StrokeRect(x, y, w, h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.back.Empty() {
		return
	}
	thickness := int(math.Max(1, math.Round(c.lineWidth)))
	gocv.Rectangle(&c.back, rectFrom(x, y, w, h), c.stroke, thickness)
}

func (c *Canvas) FillText(text string, x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.back.Empty() || text == "" {
		return
	}
	pt := image.Pt(int(math.Round(x)), int(math.Round(y)))
	gocv.PutText(&c.back, text, pt, gocv.FontHersheySimplex, c.fontScale, c.fill, 2)
}

// Present publishes the back buffer for compositing
func (c *Canvas) Present() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.back.Empty() {
		return
	}
	c.back.CopyTo(&c.front)
}

// Composite blends the presented overlay onto a BGR frame of the same size.
// Pixels the overlay never touched keep the underlying preview.
func (c *Canvas) Composite(dst *gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.front.Empty() || dst == nil || dst.Empty() {
		return
	}
	if dst.Cols() != c.width || dst.Rows() != c.height {
		return
	}

	channels := gocv.Split(c.front)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()
	if len(channels) != 4 {
		return
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(c.front, &bgr, gocv.ColorBGRAToBGR)
	bgr.CopyToWithMask(dst, channels[3])
}

func (c *Canvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.back.Close()
	c.front.Close()
	return nil
}

func (c *Canvas) clip(r image.Rectangle) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, c.width, c.height))
}

func rectFrom(x, y, w, h float64) image.Rectangle {
	x0 := int(math.Round(x))
	y0 := int(math.Round(y))
	return image.Rect(x0, y0, x0+int(math.Round(w)), y0+int(math.Round(h)))
}
