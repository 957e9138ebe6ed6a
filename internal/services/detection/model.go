package detection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/models"
)

// ErrModelClosed is returned by Detect after Close
var ErrModelClosed = errors.New("detection model closed")

// Model runs object detection on a single frame. Implementations are safe
// for concurrent use.
type Model interface {
	Detect(ctx context.Context, frame *models.Frame) ([]models.Detection, error)
	Name() string
	Close() error
}

// Loader produces a ready model. Loading may take seconds.
type Loader interface {
	Load(ctx context.Context) (Model, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (Model, error)

func (f LoaderFunc) Load(ctx context.Context) (Model, error) { return f(ctx) }

// LoadResult is delivered once by LoadAsync
type LoadResult struct {
	Model Model
	Err   error
	Took  time.Duration
}

// LoadAsync loads the model in the background and delivers exactly one
// result on the returned channel.
func LoadAsync(ctx context.Context, l Loader) <-chan LoadResult {
	out := make(chan LoadResult, 1)
	go func() {
		started := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Recovered from panic while loading model")
				out <- LoadResult{Err: fmt.Errorf("model load panicked: %v", r), Took: time.Since(started)}
			}
		}()

		m, err := l.Load(ctx)
		out <- LoadResult{Model: m, Err: err, Took: time.Since(started)}
	}()
	return out
}

// NewLoader returns a loader for the model named by MODEL_KIND
func NewLoader(cfg *config.Config) Loader {
	return LoaderFunc(func(ctx context.Context) (Model, error) {
		var build func() (Model, error)
		switch cfg.ModelKind {
		case "", "ssd":
			build = func() (Model, error) { return NewSSD(SSDConfigFrom(cfg)) }
		case "yolo":
			build = func() (Model, error) { return NewYOLO(YOLOConfigFrom(cfg)) }
		default:
			return nil, fmt.Errorf("unknown model kind %q", cfg.ModelKind)
		}

		if cfg.ModelLoadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ModelLoadTimeout)
			defer cancel()
		}
		return loadWithContext(ctx, build)
	})
}

// loadWithContext runs a blocking build and gives up when ctx ends. A model
// that finishes loading after that is closed.
func loadWithContext(ctx context.Context, build func() (Model, error)) (Model, error) {
	type result struct {
		m   Model
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := build()
		done <- result{m, err}
	}()

	select {
	case r := <-done:
		return r.m, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.m != nil {
				r.m.Close()
			}
		}()
		return nil, fmt.Errorf("model load aborted: %w", ctx.Err())
	}
}

func requireFile(path string) error {
	if path == "" {
		return errors.New("model path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model file not found: %s: %w", path, err)
	}
	return nil
}
