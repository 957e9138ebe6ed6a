package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/models"
	"sentinelcam-go/internal/services/detection"
	"sentinelcam-go/internal/services/notify"
	"sentinelcam-go/internal/services/overlay"
	"sentinelcam-go/internal/services/permission"
)

type manualScheduler struct {
	ch chan time.Time
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{ch: make(chan time.Time)}
}

func (s *manualScheduler) Start() <-chan time.Time { return s.ch }

func (s *manualScheduler) Stop() {}

func (s *manualScheduler) tick(t *testing.T) {
	t.Helper()
	select {
	case s.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline loop did not accept tick")
	}
}

type fakeSource struct {
	mu     sync.Mutex
	frames []*models.Frame
}

func (s *fakeSource) push(f *models.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *fakeSource) Next() (*models.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, false
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, true
}

type fakeModel struct {
	detect func(ctx context.Context, f *models.Frame) ([]models.Detection, error)
	closed atomic.Bool
}

func (m *fakeModel) Detect(ctx context.Context, f *models.Frame) ([]models.Detection, error) {
	return m.detect(ctx, f)
}
func (m *fakeModel) Name() string { return "fake" }
func (m *fakeModel) Close() error { m.closed.Store(true); return nil }

func returning(dets ...models.Detection) *fakeModel {
	return &fakeModel{detect: func(context.Context, *models.Frame) ([]models.Detection, error) {
		return dets, nil
	}}
}

type harness struct {
	p        *Pipeline
	sched    *manualScheduler
	source   *fakeSource
	notifier *notify.Recorder
	surface  *overlay.Recorder
}

type options struct {
	viewport    models.Viewport
	mirror      bool
	maxInFlight int
	loader      detection.Loader
	permission  permission.Checker
	noSurface   bool
}

func newHarness(t *testing.T, m detection.Model, opt options) *harness {
	t.Helper()

	if opt.viewport.Empty() {
		opt.viewport = models.Viewport{Width: 1000, Height: 2000}
	}
	if opt.loader == nil {
		opt.loader = detection.LoaderFunc(func(context.Context) (detection.Model, error) { return m, nil })
	}

	cfg := &config.Config{
		DeviceID:            "test",
		DisplayFPS:          60,
		PipelineMaxInFlight: opt.maxInFlight,
		InferenceTimeout:    time.Second,
		OverlayColor:        "#FF0000",
		OverlayLineWidth:    3,
		OverlayFontScale:    0.6,
	}

	h := &harness{
		sched:    newManualScheduler(),
		source:   &fakeSource{},
		notifier: &notify.Recorder{},
		surface:  overlay.NewRecorder(),
	}
	h.p = New(cfg, Deps{
		Loader:     opt.loader,
		Source:     h.source,
		Notifier:   h.notifier,
		Permission: opt.permission,
		Viewport:   func() models.Viewport { return opt.viewport },
		Mirror:     func() bool { return opt.mirror },
		Scheduler:  h.sched,
	})
	if !opt.noSurface {
		h.p.BindSurface(h.surface)
	}
	return h
}

func (h *harness) start(t *testing.T, waitModel bool) {
	t.Helper()
	if err := h.p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(h.p.Stop)
	if waitModel {
		waitFor(t, "model ready", func() bool {
			ready, _ := h.p.ModelStatus()
			return ready
		})
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func frame(id int64, w, h int) *models.Frame {
	return &models.Frame{ID: id, Width: w, Height: h, Channels: 3, Data: make([]byte, w*h*3)}
}

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func findOp(ops []overlay.Op, kind string) (overlay.Op, bool) {
	for _, op := range ops {
		if op.Kind == kind {
			return op, true
		}
	}
	return overlay.Op{}, false
}

var cup = models.Detection{Class: "cup", Score: 0.8, BBox: models.BBox{X: 100, Y: 50, Width: 40, Height: 60}}

func TestCycleDrawsScaledBox(t *testing.T) {
	h := newHarness(t, returning(cup), options{})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "draw and notify", func() bool { return h.p.Stats().Notifications == 1 })

	ops := h.surface.Ops()
	if ops[0].Kind != "clear" || ops[0].W != 1000 || ops[0].H != 2000 {
		t.Fatalf("expected full viewport clear first, got %+v", ops[0])
	}
	box, ok := findOp(ops, "stroke")
	if !ok {
		t.Fatal("no box drawn")
	}
	if !near(box.X, 333.33) || !near(box.Y, 333.33) || !near(box.W, 133.33) || !near(box.H, 400) {
		t.Fatalf("unexpected box %+v", box)
	}
	label, _ := findOp(ops, "text")
	if label.Text != "cup" || !near(label.X, 328.33) || !near(label.Y, 328.33) {
		t.Fatalf("unexpected label %+v", label)
	}
	if h.surface.Presents() != 1 {
		t.Fatalf("expected one present, got %d", h.surface.Presents())
	}
	if got := h.notifier.Classes(); len(got) != 1 || got[0] != "cup" {
		t.Fatalf("expected one cup notification, got %v", got)
	}
}

func TestCycleMirroredBox(t *testing.T) {
	h := newHarness(t, returning(cup), options{mirror: true})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "draw", func() bool { return h.p.Stats().Draws == 1 })

	box, _ := findOp(h.surface.Ops(), "stroke")
	if !near(box.X, 533.33) {
		t.Fatalf("expected mirrored left edge ~533, got %v", box.X)
	}
	if !near(box.Y, 333.33) {
		t.Fatalf("top edge must not be mirrored, got %v", box.Y)
	}
}

func TestNoModelSkipsCycle(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	loader := detection.LoaderFunc(func(ctx context.Context) (detection.Model, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, errors.New("not loaded")
	})

	h := newHarness(t, nil, options{loader: loader})
	h.start(t, false)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	h.sched.tick(t)
	waitFor(t, "skips", func() bool { return h.p.Stats().Skipped["no_model"] == 2 })

	if len(h.surface.Ops()) != 0 {
		t.Fatalf("nothing should be drawn without a model, got %+v", h.surface.Ops())
	}
	if h.p.State() != StateRunning {
		t.Fatalf("loop should keep running, state %s", h.p.State())
	}
}

func TestModelLoadFailureIsReported(t *testing.T) {
	loadErr := errors.New("model file not found")
	loader := detection.LoaderFunc(func(context.Context) (detection.Model, error) { return nil, loadErr })

	h := newHarness(t, nil, options{loader: loader})
	h.start(t, false)

	waitFor(t, "load error", func() bool {
		_, err := h.p.ModelStatus()
		return errors.Is(err, loadErr)
	})
	h.sched.tick(t)
	waitFor(t, "skip", func() bool { return h.p.Stats().Skipped["no_model"] == 1 })
}

func TestInferenceFailureDoesNotDraw(t *testing.T) {
	var calls atomic.Int32
	m := &fakeModel{detect: func(context.Context, *models.Frame) ([]models.Detection, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("backend error")
		}
		return []models.Detection{cup}, nil
	}}
	h := newHarness(t, m, options{})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "failure", func() bool { return h.p.Stats().InferenceFailures == 1 })

	if h.p.Stats().Draws != 0 || h.notifier.Count() != 0 {
		t.Fatal("failed inference must not draw or notify")
	}

	h.source.push(frame(2, 300, 300))
	h.sched.tick(t)
	waitFor(t, "next cycle draw", func() bool { return h.p.Stats().Draws == 1 })
}

func TestEveryDetectionNotifies(t *testing.T) {
	dets := []models.Detection{
		{Class: "person", Score: 0.9, BBox: models.BBox{X: 1, Y: 1, Width: 10, Height: 10}},
		{Class: "person", Score: 0.05, BBox: models.BBox{X: 20, Y: 1, Width: 10, Height: 10}},
		{Class: "", Score: 0.3, BBox: models.BBox{X: 40, Y: 1, Width: 10, Height: 10}},
	}
	h := newHarness(t, returning(dets...), options{})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "notifications", func() bool { return h.notifier.Count() == 3 })

	got := h.notifier.Classes()
	if got[0] != "person" || got[1] != "person" || got[2] != "" {
		t.Fatalf("unexpected notifications %v", got)
	}
	if h.surface.Count("stroke") != 3 || h.surface.Count("text") != 3 {
		t.Fatalf("expected 3 boxes and labels, got %+v", h.surface.Ops())
	}
}

func TestEmptyDetectionsOnlyClear(t *testing.T) {
	h := newHarness(t, returning(), options{})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "draw", func() bool { return h.p.Stats().Draws == 1 })

	ops := h.surface.Ops()
	if len(ops) != 1 || ops[0].Kind != "clear" {
		t.Fatalf("expected only a clear, got %+v", ops)
	}
	if h.notifier.Count() != 0 {
		t.Fatal("empty result must not notify")
	}
}

func TestStaleResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	m := &fakeModel{detect: func(ctx context.Context, f *models.Frame) ([]models.Detection, error) {
		if f.ID == 1 {
			<-release
			return []models.Detection{{Class: "old", BBox: models.BBox{Width: 1, Height: 1}}}, nil
		}
		return []models.Detection{{Class: "new", BBox: models.BBox{Width: 1, Height: 1}}}, nil
	}}
	h := newHarness(t, m, options{})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	h.source.push(frame(2, 300, 300))
	h.sched.tick(t)
	waitFor(t, "newer draw", func() bool { return h.p.Stats().Draws == 1 })

	close(release)
	waitFor(t, "stale discard", func() bool { return h.p.Stats().StaleDiscards == 1 })

	if h.p.Stats().Draws != 1 {
		t.Fatalf("stale result was drawn")
	}
	if got := h.notifier.Classes(); len(got) != 1 || got[0] != "new" {
		t.Fatalf("stale result notified: %v", got)
	}
}

func TestMissingFrameKeepsLoopAlive(t *testing.T) {
	h := newHarness(t, returning(cup), options{})
	h.start(t, true)

	for i := 0; i < 3; i++ {
		h.sched.tick(t)
	}
	waitFor(t, "no_frame skips", func() bool { return h.p.Stats().Skipped["no_frame"] == 3 })

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "draw after skips", func() bool { return h.p.Stats().Draws == 1 })
}

func TestInFlightLimit(t *testing.T) {
	release := make(chan struct{})
	m := &fakeModel{detect: func(ctx context.Context, f *models.Frame) ([]models.Detection, error) {
		<-release
		return nil, nil
	}}
	h := newHarness(t, m, options{maxInFlight: 1})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	h.source.push(frame(2, 300, 300))
	h.sched.tick(t)
	waitFor(t, "busy skip", func() bool { return h.p.Stats().Skipped["busy"] == 1 })

	close(release)
	waitFor(t, "first result", func() bool {
		s := h.p.Stats()
		return s.Draws == 1 && s.InFlight == 0
	})
	h.sched.tick(t)
	waitFor(t, "queued frame processed", func() bool { return h.p.Stats().Draws == 2 })
}

func TestNoSurfaceStillNotifies(t *testing.T) {
	h := newHarness(t, returning(cup), options{noSurface: true})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "notification", func() bool { return h.p.Stats().Notifications == 1 })

	if h.p.Stats().DrawSkips != 1 {
		t.Fatalf("expected a draw skip, got %d", h.p.Stats().DrawSkips)
	}
	if h.notifier.Count() != 1 {
		t.Fatalf("expected notification without a surface, got %d", h.notifier.Count())
	}
	if h.p.Stats().Draws != 0 {
		t.Fatal("nothing should be drawn without a surface")
	}
}

func TestInferencePanicIsRecovered(t *testing.T) {
	m := &fakeModel{detect: func(context.Context, *models.Frame) ([]models.Detection, error) {
		panic("bad tensor")
	}}
	h := newHarness(t, m, options{})
	h.start(t, true)

	h.source.push(frame(1, 300, 300))
	h.sched.tick(t)
	waitFor(t, "failure", func() bool { return h.p.Stats().InferenceFailures == 1 })

	if h.p.Stats().Panics != 1 {
		t.Fatalf("expected a recorded panic, got %d", h.p.Stats().Panics)
	}
	h.sched.tick(t)
}

func TestPermissionDenied(t *testing.T) {
	h := newHarness(t, returning(), options{permission: permission.Static(permission.StatusDenied)})

	err := h.p.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if h.p.State() != StateStopped {
		t.Fatalf("pipeline should stay stopped, got %s", h.p.State())
	}
}

func TestStartStop(t *testing.T) {
	m := returning()
	h := newHarness(t, m, options{})
	h.start(t, true)

	if err := h.p.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if h.p.RunID() == "" {
		t.Fatal("expected a run id")
	}

	h.p.Stop()
	if h.p.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", h.p.State())
	}
	if !m.closed.Load() {
		t.Fatal("model should be closed on stop")
	}

	select {
	case h.sched.ch <- time.Now():
		t.Fatal("loop still accepting ticks after stop")
	case <-time.After(20 * time.Millisecond):
	}

	h.p.Stop()
}

// gatedPermission blocks Request until release is closed
type gatedPermission struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPermission) Request(context.Context) (permission.Status, error) {
	close(g.entered)
	<-g.release
	return permission.StatusGranted, nil
}

func TestStopDuringStart(t *testing.T) {
	gate := &gatedPermission{entered: make(chan struct{}), release: make(chan struct{})}
	var loads atomic.Int32
	loader := detection.LoaderFunc(func(context.Context) (detection.Model, error) {
		loads.Add(1)
		return returning(), nil
	})
	h := newHarness(t, nil, options{permission: gate, loader: loader})

	errc := make(chan error, 1)
	go func() { errc <- h.p.Start(context.Background()) }()

	<-gate.entered
	if h.p.State() != StateStarting {
		t.Fatalf("expected starting, got %s", h.p.State())
	}
	h.p.Stop()
	close(gate.release)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	if h.p.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", h.p.State())
	}

	select {
	case h.sched.ch <- time.Now():
		t.Fatal("loop started after Stop")
	case <-time.After(20 * time.Millisecond):
	}
	if loads.Load() != 0 {
		t.Fatal("model should not load after Stop")
	}
}

func TestStartWithCancelledContext(t *testing.T) {
	h := newHarness(t, returning(), options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.p.Start(ctx)
	if !errors.Is(err, ErrStopped) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrStopped wrapping context.Canceled, got %v", err)
	}
	if h.p.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", h.p.State())
	}
}
