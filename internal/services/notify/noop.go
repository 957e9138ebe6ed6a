package notify

import (
	"sync"
)

// Noop discards every notification
type Noop struct{}

func (Noop) Notify(string) {}

// Recorder keeps the classes it was notified about
type Recorder struct {
	mu      sync.Mutex
	classes []string
}

func (r *Recorder) Notify(class string) {
	r.mu.Lock()
	r.classes = append(r.classes, class)
	r.mu.Unlock()
}

func (r *Recorder) Classes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.classes))
	copy(out, r.classes)
	return out
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.classes)
}
