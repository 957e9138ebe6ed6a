package models

import (
	"time"
)

// Frame represents a single captured image as packed BGR bytes
type Frame struct {
	ID         int64
	Data       []byte
	Width      int
	Height     int
	Channels   int
	CapturedAt time.Time
	Source     string
}

// Shape returns the tensor shape of the frame as [height, width, channels]
func (f *Frame) Shape() [3]int {
	return [3]int{f.Height, f.Width, f.Channels}
}

// Valid reports whether the frame has dimensions and enough bytes to back them
func (f *Frame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 {
		return false
	}
	return len(f.Data) >= f.Width*f.Height*f.Channels
}
