package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/logging"
	"sentinelcam-go/internal/models"
	"sentinelcam-go/internal/services/detection"
	"sentinelcam-go/internal/services/notify"
	"sentinelcam-go/internal/services/overlay"
	"sentinelcam-go/internal/services/permission"
)

// State is the lifecycle state of the pipeline
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// FrameSource hands out frames without blocking
type FrameSource interface {
	Next() (*models.Frame, bool)
}

// Deps are the collaborators the pipeline drives
type Deps struct {
	Loader     detection.Loader
	Source     FrameSource
	Notifier   notify.Notifier
	Permission permission.Checker
	Viewport   func() models.Viewport
	Mirror     func() bool
	Scheduler  Scheduler
}

// presenter is implemented by surfaces that double buffer
type presenter interface {
	Present()
}

// Pipeline runs detect, draw and notify once per scheduler tick. The loop
// goroutine is the only writer to the bound surface.
type Pipeline struct {
	deps        Deps
	maxInFlight int
	timeout     time.Duration

	state atomic.Int32

	modelMu  sync.RWMutex
	model    detection.Model
	modelErr error

	binding atomic.Pointer[overlay.Binding]
	style   overlay.Style

	stats    Stats
	inFlight atomic.Int32
	results  chan models.CycleResult

	// owned by the loop goroutine
	seq       uint64
	lastDrawn uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	workers sync.WaitGroup
	runID   string

	baseLogger zerolog.Logger
	logger     zerolog.Logger
	skipLogger zerolog.Logger
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop{}
	}
	if deps.Permission == nil {
		deps.Permission = permission.Static(permission.StatusGranted)
	}
	if deps.Mirror == nil {
		deps.Mirror = func() bool { return false }
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTickerScheduler(cfg.FrameInterval())
	}

	buf := cfg.PipelineMaxInFlight
	if buf <= 0 {
		buf = 16
	}

	base := logging.NewServiceLogger(cfg, "pipeline")
	return &Pipeline{
		deps:        deps,
		maxInFlight: cfg.PipelineMaxInFlight,
		timeout:     cfg.InferenceTimeout,
		style:       overlay.StyleFromConfig(cfg.OverlayColor, cfg.OverlayLineWidth, cfg.OverlayFontScale),
		results:     make(chan models.CycleResult, buf),
		baseLogger:  base,
		logger:      base,
		skipLogger:  logging.Sampled(base, 5, 10*time.Second),
	}
}

// BindSurface attaches the overlay surface, sized to the current viewport.
// It is called once when the display is ready.
func (p *Pipeline) BindSurface(s overlay.Surface) *overlay.Binding {
	b := overlay.Bind(s, p.deps.Viewport(), p.style)
	p.binding.Store(b)
	if b != nil {
		w, h := s.Size()
		p.baseLogger.Info().Int("width", w).Int("height", h).Msg("Overlay surface bound")
	}
	return b
}

// Start checks camera permission, begins loading the model and starts the
// loop. ctx bounds the lifetime of the pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyRunning
	}

	status, err := p.deps.Permission.Request(ctx)
	if err != nil {
		p.state.Store(int32(StateStopped))
		return fmt.Errorf("request camera permission: %w", err)
	}
	if status != permission.StatusGranted {
		p.state.Store(int32(StateStopped))
		p.logger.Warn().Str("status", string(status)).Msg("Camera permission not granted, pipeline not started")
		return ErrPermissionDenied
	}

	if err := ctx.Err(); err != nil {
		p.state.Store(int32(StateStopped))
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.runID = runID
	p.cancel = cancel
	p.done = make(chan struct{})
	p.logger = logging.WithRun(p.baseLogger, runID)
	p.skipLogger = logging.Sampled(p.logger, 5, 10*time.Second)
	done := p.done
	p.mu.Unlock()

	p.setModel(nil, nil)

	// cancel and done are published before this point so a Stop that sees
	// StateRunning can wait on the loop
	if !p.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		cancel()
		p.state.Store(int32(StateStopped))
		p.logger.Info().Msg("Pipeline stopped before it started")
		return ErrStopped
	}

	go p.loadModel(runCtx)
	go p.loop(runCtx, done)

	p.logger.Info().Msg("Pipeline started")
	return nil
}

// Stop cancels the loop, waits for in-flight inferences and releases the
// model. A Stop during Start makes Start return ErrStopped without running
// the loop. It is safe to call more than once.
func (p *Pipeline) Stop() {
	for {
		switch State(p.state.Load()) {
		case StateStarting:
			if p.state.CompareAndSwap(int32(StateStarting), int32(StateStopping)) {
				return
			}
			continue
		case StateRunning:
			if !p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
				continue
			}
		default:
			return
		}
		break
	}

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.workers.Wait()
	p.drainResults()

	p.modelMu.Lock()
	if p.model != nil {
		if err := p.model.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Error closing model")
		}
		p.model = nil
	}
	p.modelMu.Unlock()

	p.state.Store(int32(StateStopped))
	p.logger.Info().Msg("Pipeline stopped")
}

func (p *Pipeline) drainResults() {
	for {
		select {
		case <-p.results:
		default:
			return
		}
	}
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Stats returns a snapshot of the loop counters
func (p *Pipeline) Stats() StatsSnapshot {
	s := p.stats.snapshot()
	s.InFlight = p.inFlight.Load()
	return s
}

// ModelStatus reports whether the model is ready and the last load error
func (p *Pipeline) ModelStatus() (ready bool, err error) {
	p.modelMu.RLock()
	defer p.modelMu.RUnlock()
	return p.model != nil, p.modelErr
}

func (p *Pipeline) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

func (p *Pipeline) setModel(m detection.Model, err error) {
	p.modelMu.Lock()
	p.model = m
	p.modelErr = err
	p.modelMu.Unlock()
}

func (p *Pipeline) currentModel() detection.Model {
	p.modelMu.RLock()
	defer p.modelMu.RUnlock()
	return p.model
}

func (p *Pipeline) loadModel(ctx context.Context) {
	if p.deps.Loader == nil {
		p.setModel(nil, ErrNoModel)
		p.logger.Error().Msg("No model loader configured")
		return
	}

	p.logger.Info().Msg("Loading detection model")
	results := detection.LoadAsync(ctx, p.deps.Loader)

	select {
	case res := <-results:
		if res.Err != nil {
			p.setModel(nil, res.Err)
			p.logger.Error().Err(res.Err).Dur("took", res.Took).Msg("Failed to load detection model")
			return
		}

		// Stop may already have run; do not leak a model nobody will close
		p.modelMu.Lock()
		if ctx.Err() != nil {
			p.modelMu.Unlock()
			res.Model.Close()
			return
		}
		p.model = res.Model
		p.modelErr = nil
		p.modelMu.Unlock()
		p.logger.Info().Str("model", res.Model.Name()).Dur("took", res.Took).Msg("Detection model loaded")

	case <-ctx.Done():
		go func() {
			if res := <-results; res.Model != nil {
				res.Model.Close()
			}
		}()
	}
}

func (p *Pipeline) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticks := p.deps.Scheduler.Start()
	defer p.deps.Scheduler.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Pipeline loop exiting")
			return
		case <-ticks:
			p.safely("cycle", func() { p.cycle(ctx) })
		case res := <-p.results:
			p.safely("result", func() { p.apply(res) })
		}
	}
}

// safely runs fn and turns a panic into a log line so the loop survives
func (p *Pipeline) safely(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.Panics.Add(1)
			log.Error().Interface("panic", r).Str("stage", stage).Msg("Recovered from panic in pipeline")
		}
	}()
	fn()
}

// precondition returns the model and frame for this cycle or the reason the
// cycle cannot run
func (p *Pipeline) precondition() (detection.Model, *models.Frame, error) {
	m := p.currentModel()
	if m == nil {
		return nil, nil, ErrNoModel
	}
	if p.maxInFlight > 0 && int(p.inFlight.Load()) >= p.maxInFlight {
		return nil, nil, ErrBusy
	}
	frame, ok := p.deps.Source.Next()
	if !ok || frame == nil {
		return nil, nil, ErrNoFrame
	}
	return m, frame, nil
}

func (p *Pipeline) cycle(ctx context.Context) {
	p.stats.Cycles.Add(1)

	m, frame, err := p.precondition()
	if err != nil {
		reason := skipReason(err)
		p.stats.skip(reason)
		p.skipLogger.Debug().Err(err).Str("reason", reason).Msg("Cycle skipped")
		return
	}

	p.seq++
	job := models.CycleResult{
		Seq:       p.seq,
		Frame:     frame,
		Viewport:  p.deps.Viewport(),
		Mirror:    p.deps.Mirror(),
		StartedAt: time.Now(),
	}

	p.inFlight.Add(1)
	p.workers.Add(1)
	go p.infer(ctx, m, job)
}

func (p *Pipeline) infer(ctx context.Context, m detection.Model, job models.CycleResult) {
	defer p.workers.Done()
	defer p.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.stats.Panics.Add(1)
			log.Error().Interface("panic", r).Uint64("seq", job.Seq).Msg("Recovered from panic during inference")
			job.Err = fmt.Errorf("inference panicked: %v", r)
			p.deliver(ctx, job)
		}
	}()

	ictx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.stats.Inferences.Add(1)
	job.Detections, job.Err = m.Detect(ictx, job.Frame)
	job.Duration = time.Since(job.StartedAt)
	p.deliver(ctx, job)
}

func (p *Pipeline) deliver(ctx context.Context, res models.CycleResult) {
	select {
	case p.results <- res:
	case <-ctx.Done():
	}
}

// apply draws and notifies for a finished inference. Results older than the
// last drawn cycle are dropped.
func (p *Pipeline) apply(res models.CycleResult) {
	if res.Err != nil {
		p.stats.InferenceFailures.Add(1)
		p.logger.Error().Err(res.Err).Uint64("seq", res.Seq).Dur("took", res.Duration).Msg("Inference failed")
		return
	}
	if res.Seq < p.lastDrawn {
		p.stats.StaleDiscards.Add(1)
		p.logger.Debug().Uint64("seq", res.Seq).Uint64("last_drawn", p.lastDrawn).Msg("Discarding stale result")
		return
	}
	p.lastDrawn = res.Seq

	if b := p.binding.Load(); b != nil {
		proj := overlay.NewProjection(res.Viewport, res.Frame.Width, res.Frame.Height, res.Mirror, b.Width())
		overlay.Draw(b, res.Viewport, proj, res.Detections)
		if pr, ok := b.Surface.(presenter); ok {
			pr.Present()
		}
		p.stats.Draws.Add(1)
	} else {
		p.stats.DrawSkips.Add(1)
		p.skipLogger.Warn().Uint64("seq", res.Seq).Msg("No surface bound, skipping draw")
	}

	for _, d := range res.Detections {
		p.deps.Notifier.Notify(d.Class)
		p.stats.Notifications.Add(1)
	}

	if len(res.Detections) > 0 {
		p.logger.Debug().
			Uint64("seq", res.Seq).
			Int("detections", len(res.Detections)).
			Dur("took", res.Duration).
			Msg("Cycle complete")
	}
}
