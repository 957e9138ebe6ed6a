package overlay

import (
	"image/color"
	"sync"
)

// Op is a single recorded drawing call
type Op struct {
	Kind       string // "clear", "stroke", "text"
	X, Y, W, H float64
	Text       string
}

// Recorder is an in-memory Surface that records every drawing call so
// callers can assert on what was drawn.
type Recorder struct {
	mu        sync.Mutex
	width     int
	height    int
	ops       []Op
	Stroke    color.RGBA
	Fill      color.RGBA
	LineWidth float64
	FontScale float64
	presents  int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SetSize(width, height int) {
	r.mu.Lock()
	r.width, r.height = width, height
	r.mu.Unlock()
}

func (r *Recorder) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *Recorder) Context2D() Context { return r }

func (r *Recorder) SetStrokeStyle(c color.RGBA) {
	r.mu.Lock()
	r.Stroke = c
	r.mu.Unlock()
}

func (r *Recorder) SetFillStyle(c color.RGBA) {
	r.mu.Lock()
	r.Fill = c
	r.mu.Unlock()
}

func (r *Recorder) SetLineWidth(w float64) {
	r.mu.Lock()
	r.LineWidth = w
	r.mu.Unlock()
}

func (r *Recorder) SetFontScale(s float64) {
	r.mu.Lock()
	r.FontScale = s
	r.mu.Unlock()
}

func (r *Recorder) ClearRect(x, y, w, h float64) {
	r.record(Op{Kind: "clear", X: x, Y: y, W: w, H: h})
}

func (r *Recorder) StrokeRect(x, y, w, h float64) {
	r.record(Op{Kind: "stroke", X: x, Y: y, W: w, H: h})
}

func (r *Recorder) FillText(text string, x, y float64) {
	r.record(Op{Kind: "text", X: x, Y: y, Text: text})
}

func (r *Recorder) Present() {
	r.mu.Lock()
	r.presents++
	r.mu.Unlock()
}

// Ops returns a copy of everything drawn so far
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Count returns how many ops of the given kind were recorded
func (r *Recorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Recorder) Presents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presents
}

func (r *Recorder) record(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}
