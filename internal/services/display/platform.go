package display

import (
	"runtime"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/models"
)

// Platform answers the geometry questions the pipeline asks every cycle
type Platform struct {
	goos     string
	viewport models.Viewport
	mirror   string
}

func NewPlatform(cfg *config.Config) *Platform {
	return &Platform{
		goos:     runtime.GOOS,
		viewport: models.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		mirror:   cfg.Mirror,
	}
}

// Viewport returns the display size from VIEWPORT_WIDTH and VIEWPORT_HEIGHT.
// The preview window is resized to it, so it does not change at runtime.
func (p *Platform) Viewport() models.Viewport {
	return p.viewport
}

// Mirror reports whether the preview is horizontally flipped. Front facing
// previews are mirrored everywhere except iOS unless MIRROR says otherwise.
func (p *Platform) Mirror() bool {
	return MirrorFor(p.goos, p.mirror)
}

func MirrorFor(goos, override string) bool {
	switch override {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return goos != "ios"
}
