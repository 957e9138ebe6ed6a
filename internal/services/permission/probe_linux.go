package permission

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// V4L device nodes, Linux and Android only
const videoDevicePrefix = "/dev/video"

func probeDevice(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("access %s: %w", path, err)
	}
	return nil
}
