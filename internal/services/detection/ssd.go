package detection

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/models"
)

// SSDConfig configures the SSD MobileNet COCO detector
type SSDConfig struct {
	ModelPath     string
	ConfigPath    string
	InputSize     int
	MinScore      float64
	MaxDetections int
}

func SSDConfigFrom(cfg *config.Config) SSDConfig {
	return SSDConfig{
		ModelPath:     cfg.ModelPath,
		ConfigPath:    cfg.ModelConfigPath,
		InputSize:     cfg.ModelInputSize,
		MinScore:      cfg.ModelMinScore,
		MaxDetections: cfg.ModelMaxDetections,
	}
}

// SSDModel runs a TensorFlow SSD MobileNet graph through the OpenCV DNN module
type SSDModel struct {
	mu     sync.Mutex
	net    gocv.Net
	cfg    SSDConfig
	closed bool
}

func NewSSD(cfg SSDConfig) (*SSDModel, error) {
	if err := requireFile(cfg.ModelPath); err != nil {
		return nil, err
	}
	if err := requireFile(cfg.ConfigPath); err != nil {
		return nil, err
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 300
	}

	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load SSD network from %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}

	return &SSDModel{net: net, cfg: cfg}, nil
}

func (m *SSDModel) Name() string { return "ssd-mobilenet-coco" }

func (m *SSDModel) Detect(ctx context.Context, frame *models.Frame) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := frameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModelClosed
	}

	size := image.Pt(m.cfg.InputSize, m.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/127.5, size, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read SSD output: %w", err)
	}
	return parseSSD(data, frame.Width, frame.Height, m.cfg.MinScore, m.cfg.MaxDetections), nil
}

func (m *SSDModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}

// parseSSD reads rows of [batch, classId, score, x1, y1, x2, y2] with
// normalized corners and returns pixel boxes sorted by score
func parseSSD(data []float32, width, height int, minScore float64, maxDetections int) []models.Detection {
	fw, fh := float64(width), float64(height)
	var out []models.Detection

	for i := 0; i+7 <= len(data); i += 7 {
		score := float64(data[i+2])
		if score < minScore {
			continue
		}
		x1 := clamp01(float64(data[i+3])) * fw
		y1 := clamp01(float64(data[i+4])) * fh
		x2 := clamp01(float64(data[i+5])) * fw
		y2 := clamp01(float64(data[i+6])) * fh
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		out = append(out, models.Detection{
			Class: SSDLabel(int(data[i+1])),
			Score: score,
			BBox:  models.BBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
		})
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if maxDetections > 0 && len(out) > maxDetections {
		out = out[:maxDetections]
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// frameToMat wraps the frame bytes in a BGR Mat
func frameToMat(frame *models.Frame) (gocv.Mat, error) {
	if !frame.Valid() {
		return gocv.Mat{}, fmt.Errorf("invalid frame")
	}
	if frame.Channels != 3 {
		return gocv.Mat{}, fmt.Errorf("expected 3 channel frame, got %d", frame.Channels)
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data[:frame.Width*frame.Height*3])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("wrap frame: %w", err)
	}
	return mat, nil
}
