package detection

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"sentinelcam-go/internal/config"
	"sentinelcam-go/internal/models"
)

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath     string
	InputSize     int
	MinScore      float64
	NMSThreshold  float64
	MaxDetections int
}

func YOLOConfigFrom(cfg *config.Config) YOLOConfig {
	size := cfg.ModelInputSize
	if size == 300 {
		// 300 is the SSD default; YOLOv8 exports expect 640
		size = 640
	}
	return YOLOConfig{
		ModelPath:     cfg.ModelPath,
		InputSize:     size,
		MinScore:      cfg.ModelMinScore,
		NMSThreshold:  cfg.ModelNMSThreshold,
		MaxDetections: cfg.ModelMaxDetections,
	}
}

// YOLOModel runs a YOLOv8 ONNX export
type YOLOModel struct {
	mu     sync.Mutex
	net    gocv.Net
	cfg    YOLOConfig
	closed bool
}

func NewYOLO(cfg YOLOConfig) (*YOLOModel, error) {
	if err := requireFile(cfg.ModelPath); err != nil {
		return nil, err
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLOModel{net: net, cfg: cfg}, nil
}

func (m *YOLOModel) Name() string { return "yolov8-coco" }

func (m *YOLOModel) Detect(ctx context.Context, frame *models.Frame) ([]models.Detection, error) {
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
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Output shape: [1, 84, N] - 4 box values then 80 class scores per column
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected YOLO output shape %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read YOLO output: %w", err)
	}

	cands := yoloCandidates(data, sizes[1], sizes[2], m.cfg.MinScore,
		float64(frame.Width)/float64(m.cfg.InputSize), float64(frame.Height)/float64(m.cfg.InputSize))
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = image.Rect(int(c.BBox.X), int(c.BBox.Y), int(c.BBox.X+c.BBox.Width), int(c.BBox.Y+c.BBox.Height))
		scores[i] = float32(c.Score)
	}
	indices := gocv.NMSBoxes(boxes, scores, float32(m.cfg.MinScore), float32(m.cfg.NMSThreshold))

	out := make([]models.Detection, 0, len(indices))
	for _, idx := range indices {
		out = append(out, cands[idx])
		if m.cfg.MaxDetections > 0 && len(out) == m.cfg.MaxDetections {
			break
		}
	}
	return out, nil
}

func (m *YOLOModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}

// yoloCandidates decodes a channel-major [features x n] tensor into frame
// space boxes above minScore
func yoloCandidates(data []float32, features, n int, minScore, sx, sy float64) []models.Detection {
	if features < 5 || len(data) < features*n {
		return nil
	}

	var out []models.Detection
	for i := 0; i < n; i++ {
		best, bestID := float32(0), -1
		for c := 4; c < features; c++ {
			if s := data[c*n+i]; s > best {
				best, bestID = s, c-4
			}
		}
		if bestID < 0 || float64(best) < minScore {
			continue
		}

		cx, cy := float64(data[i]), float64(data[n+i])
		w, h := float64(data[2*n+i]), float64(data[3*n+i])
		out = append(out, models.Detection{
			Class: YOLOLabel(bestID),
			Score: float64(best),
			BBox: models.BBox{
				X:      (cx - w/2) * sx,
				Y:      (cy - h/2) * sy,
				Width:  w * sx,
				Height: h * sy,
			},
		})
	}
	return out
}
