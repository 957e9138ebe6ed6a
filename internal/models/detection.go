package models

import (
	"time"
)

// BBox is an axis-aligned box in frame pixels, origin top-left
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection represents one object reported by the model for a frame
type Detection struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	BBox  BBox    `json:"bbox"`
}

// Viewport is the screen geometry the overlay is scaled to
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the viewport has no drawable area
func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// CycleResult is the outcome of one detect cycle as delivered back to the loop
type CycleResult struct {
	Seq        uint64
	Frame      *Frame
	Viewport   Viewport
	Mirror     bool
	Detections []Detection
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}
