package pipeline

import "errors"

var (
	// ErrNoModel means the detection model has not finished loading
	ErrNoModel = errors.New("detection model not loaded")
	// ErrNoFrame means the capture source had no new frame
	ErrNoFrame = errors.New("no new frame available")
	// ErrBusy means the in-flight inference limit was reached
	ErrBusy = errors.New("inference limit reached")
	// ErrPermissionDenied is returned by Start when the camera may not be used
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrAlreadyRunning is returned by Start on a running pipeline
	ErrAlreadyRunning = errors.New("pipeline already running")
	// ErrStopped is returned by Start when Stop or ctx cancellation won the race
	ErrStopped = errors.New("pipeline stopped while starting")
)

// skipReason maps a precondition error to its stats key
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrNoModel):
		return "no_model"
	case errors.Is(err, ErrNoFrame):
		return "no_frame"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "other"
	}
}
