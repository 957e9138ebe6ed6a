package pipeline

import "time"

// Scheduler fires the pipeline once per display refresh
type Scheduler interface {
	Start() <-chan time.Time
	Stop()
}

// TickerScheduler ticks at a fixed refresh interval
type TickerScheduler struct {
	interval time.Duration
	ticker   *time.Ticker
}

func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &TickerScheduler{interval: interval}
}

func (s *TickerScheduler) Start() <-chan time.Time {
	s.ticker = time.NewTicker(s.interval)
	return s.ticker.C
}

func (s *TickerScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
}
