package capture

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/models"
)

// Source is a live feed of frames. Next never blocks: it hands out the newest
// frame that has not been returned before, or false when nothing new arrived.
type Source interface {
	Start(ctx context.Context) error
	Next() (*models.Frame, bool)
	Latest() *models.Frame
	Close() error
}

// NewSource picks the capture source named by CAPTURE_SOURCE
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.CaptureSource {
	case "", "camera":
		return NewCameraSource(cfg), nil
	case "screen":
		return NewScreenSource(cfg), nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.CaptureSource)
	}
}

// Slot holds only the most recent frame. Writers replace it, readers
// consume it once through Next.
type Slot struct {
	mu    sync.Mutex
	frame *models.Frame
	seen  bool
}

func (s *Slot) Put(f *models.Frame) {
	if f == nil {
		return
	}
	s.mu.Lock()
	s.frame = f
	s.seen = false
	s.mu.Unlock()
}

func (s *Slot) Next() (*models.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil || s.seen {
		return nil, false
	}
	s.seen = true
	return s.frame, true
}

func (s *Slot) Latest() *models.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// CalculateBackoffDelay calculates jittered exponential backoff delay
func CalculateBackoffDelay(cfg *config.Config, attempt int) time.Duration {
	// Base delay with exponential backoff
	baseDelay := time.Duration(math.Pow(2, float64(attempt))) * time.Second

	// Clamp to configured min/max
	if baseDelay < cfg.ReconnectBackoffMin {
		baseDelay = cfg.ReconnectBackoffMin
	}
	if cfg.ReconnectBackoffMax > 0 && baseDelay > cfg.ReconnectBackoffMax {
		baseDelay = cfg.ReconnectBackoffMax
	}

	jitterPct := float64(cfg.ReconnectJitterPct) / 100.0
	jitter := time.Duration(float64(baseDelay) * jitterPct * (rand.Float64()*2 - 1))

	return baseDelay + jitter
}

// sleepCtx waits for d or until ctx is done. It reports false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
