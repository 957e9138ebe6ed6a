package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	DeviceID    string
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Diagnostics API
	APIEnabled  bool
	APIPort     int
	SwaggerHost string

	// Capture
	CaptureSource       string // "camera" or "screen"
	CameraDevice        string // device index, file path or stream URL
	CaptureWidth        int
	CaptureHeight       int
	CameraPermission    string // "auto", "granted" or "denied"
	MaxRetries          int
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
	ReconnectJitterPct  int

	// Model
	ModelKind          string // "ssd" or "yolo"
	ModelPath          string
	ModelConfigPath    string
	ModelMinScore      float64
	ModelMaxDetections int
	ModelInputSize     int
	ModelNMSThreshold  float64
	ModelLoadTimeout   time.Duration

	// Pipeline
	DisplayFPS          int
	PipelineMaxInFlight int
	InferenceTimeout    time.Duration

	// Display / viewport
	DisplayEnabled bool
	WindowTitle    string
	ViewportWidth  int
	ViewportHeight int
	Mirror         string // "auto", "true" or "false"
	ShowStats      bool

	// Overlay style
	OverlayColor     string
	OverlayLineWidth float64
	OverlayFontScale float64

	// Notifications
	NotifyEnabled  bool
	SoundCommand   string
	SoundFile      string // empty plays the built-in sound
	VibrateCommand string
	VibratePulse   time.Duration
	VibratePause   time.Duration
	VibrateCount   int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DeviceID:    getEnv("DEVICE_ID", defaultDeviceID()),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Diagnostics API
		APIEnabled:  getEnvBool("API_ENABLED", false),
		APIPort:     getEnvInt("API_PORT", 8000),
		SwaggerHost: getEnv("SWAGGER_HOST", "localhost:8000"),

		// Capture
		CaptureSource:       getEnv("CAPTURE_SOURCE", "camera"),
		CameraDevice:        getEnv("CAMERA_DEVICE", "0"),
		CaptureWidth:        getEnvInt("CAPTURE_WIDTH", 640),
		CaptureHeight:       getEnvInt("CAPTURE_HEIGHT", 480),
		CameraPermission:    getEnv("CAMERA_PERMISSION", "auto"),
		MaxRetries:          getEnvInt("MAX_RETRIES", 10),
		ReconnectBackoffMin: getEnvDuration("RECONNECT_BACKOFF_MIN", 1*time.Second),
		ReconnectBackoffMax: getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second),
		ReconnectJitterPct:  getEnvInt("RECONNECT_JITTER_PCT", 20),

		// Model
		ModelKind:          getEnv("MODEL_KIND", "ssd"),
		ModelPath:          getEnv("MODEL_PATH", "models/frozen_inference_graph.pb"),
		ModelConfigPath:    getEnv("MODEL_CONFIG_PATH", "models/ssd_mobilenet_v1_coco_2017_11_17.pbtxt"),
		ModelMinScore:      getEnvFloat("MODEL_MIN_SCORE", 0.5),
		ModelMaxDetections: getEnvInt("MODEL_MAX_DETECTIONS", 20),
		ModelInputSize:     getEnvInt("MODEL_INPUT_SIZE", 300),
		ModelNMSThreshold:  getEnvFloat("MODEL_NMS_THRESHOLD", 0.45),
		ModelLoadTimeout:   getEnvDuration("MODEL_LOAD_TIMEOUT", 60*time.Second),

		// Pipeline
		DisplayFPS:          getEnvInt("DISPLAY_FPS", 60),
		PipelineMaxInFlight: getEnvInt("PIPELINE_MAX_INFLIGHT", 2),
		InferenceTimeout:    getEnvDuration("INFERENCE_TIMEOUT", 5*time.Second),

		// Display / viewport
		DisplayEnabled: getEnvBool("DISPLAY_ENABLED", true),
		WindowTitle:    getEnv("WINDOW_TITLE", "SentinelCam"),
		ViewportWidth:  getEnvInt("VIEWPORT_WIDTH", 1280),
		ViewportHeight: getEnvInt("VIEWPORT_HEIGHT", 720),
		Mirror:         getEnv("MIRROR", "auto"),
		ShowStats:      getEnvBool("SHOW_STATS", false),

		// Overlay style
		OverlayColor:     getEnv("OVERLAY_COLOR", "#FF0000"),
		OverlayLineWidth: getEnvFloat("OVERLAY_LINE_WIDTH", 3),
		OverlayFontScale: getEnvFloat("OVERLAY_FONT_SCALE", 0.6),

		// Notifications
		NotifyEnabled:  getEnvBool("NOTIFY_ENABLED", true),
		SoundCommand:   getEnv("SOUND_COMMAND", defaultSoundCommand()),
		SoundFile:      getEnv("SOUND_FILE", ""),
		VibrateCommand: getEnv("VIBRATE_COMMAND", defaultVibrateCommand()),
		VibratePulse:   getEnvDuration("VIBRATE_PULSE", 500*time.Millisecond),
		VibratePause:   getEnvDuration("VIBRATE_PAUSE", 500*time.Millisecond),
		VibrateCount:   getEnvInt("VIBRATE_COUNT", 3),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	cfg.Validate()
	return cfg
}

// Validate clamps values into usable ranges.
func (c *Config) Validate() {
	if c.DisplayFPS <= 0 {
		c.DisplayFPS = 60
	}
	if c.PipelineMaxInFlight < 0 {
		c.PipelineMaxInFlight = 0
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 720
	}
	if c.ModelMinScore < 0 || c.ModelMinScore > 1 {
		c.ModelMinScore = 0.5
	}
	if c.ModelMaxDetections <= 0 {
		c.ModelMaxDetections = 20
	}
	if c.ModelInputSize <= 0 {
		c.ModelInputSize = 300
	}
	if c.OverlayLineWidth <= 0 {
		c.OverlayLineWidth = 3
	}
	if c.OverlayFontScale <= 0 {
		c.OverlayFontScale = 0.6
	}
	if c.VibrateCount < 0 {
		c.VibrateCount = 0
	}
	if c.InferenceTimeout <= 0 {
		c.InferenceTimeout = 5 * time.Second
	}
	c.ModelKind = strings.ToLower(c.ModelKind)
	c.CaptureSource = strings.ToLower(c.CaptureSource)
	c.Mirror = strings.ToLower(c.Mirror)
	c.CameraPermission = strings.ToLower(c.CameraPermission)
}

// FrameInterval is the refresh period the pipeline is scheduled on.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.DisplayFPS)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func defaultDeviceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "device-1"
}

// defaultSoundCommand picks a stock player for the host OS
func defaultSoundCommand() string {
	switch runtime.GOOS {
	case "darwin", "ios":
		return "afplay"
	case "android":
		return "termux-media-player play"
	case "linux":
		return "aplay -q"
	default:
		return ""
	}
}

func defaultVibrateCommand() string {
	if runtime.GOOS == "android" {
		return "termux-vibrate -f -d %d"
	}
	return ""
}
