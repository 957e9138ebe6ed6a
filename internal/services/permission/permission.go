package permission

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/logging"
)

// Status is the outcome of a camera permission request
type Status string

const (
	StatusGranted      Status = "granted"
	StatusDenied       Status = "denied"
	StatusUndetermined Status = "undetermined"
)

// Checker asks the platform whether the camera may be used
type Checker interface {
	Request(ctx context.Context) (Status, error)
}

// DeviceChecker resolves camera permission from the capture device. A
// CAMERA_PERMISSION other than "auto" short-circuits the check.
type DeviceChecker struct {
	device   string
	source   string
	override Status
	probe    func(path string) error
	logger   zerolog.Logger
}

func NewDeviceChecker(cfg *config.Config) *DeviceChecker {
	var override Status
	switch strings.ToLower(cfg.CameraPermission) {
	case "granted":
		override = StatusGranted
	case "denied":
		override = StatusDenied
	}
	return &DeviceChecker{
		device:   cfg.CameraDevice,
		source:   cfg.CaptureSource,
		override: override,
		probe:    probeDevice,
		logger:   logging.NewServiceLogger(cfg, "permission"),
	}
}

func (d *DeviceChecker) Request(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return StatusUndetermined, err
	}
	if d.override != "" {
		d.logger.Info().Str("status", string(d.override)).Msg("Camera permission set by configuration")
		return d.override, nil
	}
	if d.source == "screen" {
		return StatusGranted, nil
	}

	path, ok := devicePath(d.device)
	if !ok {
		// files and stream URLs need no camera permission
		return StatusGranted, nil
	}

	if err := d.probe(path); err != nil {
		d.logger.Warn().Err(err).Str("path", path).Msg("Camera device not accessible")
		return StatusDenied, nil
	}
	d.logger.Debug().Str("path", path).Msg("Camera permission granted")
	return StatusGranted, nil
}

// devicePath maps a numeric camera index to its device node
func devicePath(device string) (string, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(device))
	if err != nil || idx < 0 {
		return "", false
	}
	return videoDevicePrefix + strconv.Itoa(idx), videoDevicePrefix != ""
}

// Static always answers with the same status
type Static Status

func (s Static) Request(context.Context) (Status, error) { return Status(s), nil }
