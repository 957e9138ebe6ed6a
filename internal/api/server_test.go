package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sentinelcam-go/internal/api/handlers"
	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/pipeline"
)

type fakeStatus struct {
	state    pipeline.State
	ready    bool
	modelErr error
	stats    pipeline.StatsSnapshot
}

func (f *fakeStatus) State() pipeline.State { return f.state }

func (f *fakeStatus) Stats() pipeline.StatsSnapshot { return f.stats }

func (f *fakeStatus) ModelStatus() (bool, error) { return f.ready, f.modelErr }

func (f *fakeStatus) RunID() string { return "run-1" }

func newTestServer(status *fakeStatus) *Server {
	cfg := &config.Config{DeviceID: "dev-1", Version: "1.2.3", Environment: "test", APIPort: 0, NotifyEnabled: true}
	return NewServer(cfg, status)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthRunning(t *testing.T) {
	s := newTestServer(&fakeStatus{state: pipeline.StateRunning, ready: true})
	rec := get(t, s, "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp handlers.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" || resp.PipelineState != "running" || !resp.ModelReady || resp.DeviceID != "dev-1" {
		t.Fatalf("unexpected health %+v", resp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestHealthDegradedAndStopped(t *testing.T) {
	s := newTestServer(&fakeStatus{state: pipeline.StateRunning, modelErr: errors.New("model file not found")})
	rec := get(t, s, "/health")
	var resp handlers.HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.Status != "degraded" || resp.ModelError == "" {
		t.Fatalf("expected degraded with model error, got %d %+v", rec.Code, resp)
	}

	s = newTestServer(&fakeStatus{state: pipeline.StateStopped})
	if rec := get(t, s, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when stopped, got %d", rec.Code)
	}
}

func TestPipelineStats(t *testing.T) {
	s := newTestServer(&fakeStatus{
		state: pipeline.StateRunning,
		stats: pipeline.StatsSnapshot{Cycles: 42, Draws: 7, Skipped: map[string]int64{"no_frame": 3}},
	})
	rec := get(t, s, "/pipeline/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp handlers.PipelineStatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.Cycles != 42 || resp.Stats.Draws != 7 || resp.Stats.Skipped["no_frame"] != 3 {
		t.Fatalf("unexpected stats %+v", resp.Stats)
	}
	if resp.RunID != "run-1" || resp.State != "running" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestDeviceInfoAndSystemStats(t *testing.T) {
	s := newTestServer(&fakeStatus{})

	rec := get(t, s, "/")
	var info handlers.DeviceInfoResponse
	json.Unmarshal(rec.Body.Bytes(), &info)
	if info.Version != "1.2.3" || len(info.Capabilities) != 4 {
		t.Fatalf("unexpected device info %+v", info)
	}

	if rec := get(t, s, "/system/stats"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from system stats, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeStatus{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
