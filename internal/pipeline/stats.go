package pipeline

import "sync/atomic"

// Stats counts what the loop did. All fields are updated atomically.
type Stats struct {
	Cycles            atomic.Int64
	SkippedNoModel    atomic.Int64
	SkippedNoFrame    atomic.Int64
	SkippedBusy       atomic.Int64
	Inferences        atomic.Int64
	InferenceFailures atomic.Int64
	StaleDiscards     atomic.Int64
	Draws             atomic.Int64
	DrawSkips         atomic.Int64
	Notifications     atomic.Int64
	Panics            atomic.Int64
}

// StatsSnapshot is a point in time copy of Stats
type StatsSnapshot struct {
	Cycles            int64            `json:"cycles"`
	Skipped           map[string]int64 `json:"skipped"`
	Inferences        int64            `json:"inferences"`
	InferenceFailures int64            `json:"inference_failures"`
	StaleDiscards     int64            `json:"stale_discards"`
	Draws             int64            `json:"draws"`
	DrawSkips         int64            `json:"draw_skips"`
	Notifications     int64            `json:"notifications"`
	Panics            int64            `json:"panics"`
	InFlight          int32            `json:"in_flight"`
}

func (s *Stats) skip(reason string) {
	switch reason {
	case "no_model":
		s.SkippedNoModel.Add(1)
	case "no_frame":
		s.SkippedNoFrame.Add(1)
	case "busy":
		s.SkippedBusy.Add(1)
	}
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Cycles: s.Cycles.Load(),
		Skipped: map[string]int64{
			"no_model": s.SkippedNoModel.Load(),
			"no_frame": s.SkippedNoFrame.Load(),
			"busy":     s.SkippedBusy.Load(),
		},
		Inferences:        s.Inferences.Load(),
		InferenceFailures: s.InferenceFailures.Load(),
		StaleDiscards:     s.StaleDiscards.Load(),
		Draws:             s.Draws.Load(),
		DrawSkips:         s.DrawSkips.Load(),
		Notifications:     s.Notifications.Load(),
		Panics:            s.Panics.Load(),
	}
}
