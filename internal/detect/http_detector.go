package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"crashwatch/internal/pipeline"
)

const (
	defaultDetectorTimeout = 10 * time.Second
	healthCheckInterval    = 30 * time.Second
	jpegQuality            = 85
)

// HTTPDetector is a client for an object-detection microservice. Frames are
// posted as JPEG multipart uploads to /detect; the service answers with
// labeled boxes in pixel coordinates. Health is polled lazily and cached.
type HTTPDetector struct {
	endpoint string
	client   *http.Client

	mu          sync.RWMutex
	healthy     bool
	lastChecked time.Time
}

// HTTPDetectorConfig holds client configuration
type HTTPDetectorConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// httpDetection mirrors one detection in the service response
type httpDetection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

// httpDetectResult mirrors the service response body
type httpDetectResult struct {
	Detections      []httpDetection `json:"detections"`
	Count           int             `json:"count"`
	InferenceTimeMs float64         `json:"inference_time_ms"`
}

// NewHTTPDetector creates a detector client for the given service endpoint
func NewHTTPDetector(config HTTPDetectorConfig) *HTTPDetector {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultDetectorTimeout
	}
	return &HTTPDetector{
		endpoint: config.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDetector) Name() string { return "http" }

// IsHealthy reports whether the service answered its last health probe. The
// probe result is cached for healthCheckInterval.
func (d *HTTPDetector) IsHealthy() bool {
	d.mu.RLock()
	fresh := time.Since(d.lastChecked) < healthCheckInterval
	healthy := d.healthy
	d.mu.RUnlock()
	if fresh {
		return healthy
	}

	healthy = d.probeHealth()

	d.mu.Lock()
	d.healthy = healthy
	d.lastChecked = time.Now()
	d.mu.Unlock()
	return healthy
}

func (d *HTTPDetector) probeHealth() bool {
	resp, err := d.client.Get(d.endpoint + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Detect posts the frame to the detection service and returns its raw,
// detector-native detections
func (d *HTTPDetector) Detect(ctx context.Context, frame *pipeline.FrameData) ([]pipeline.RawDetection, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("detect: empty frame")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fmt.Sprintf("frame_%d.jpg", frame.Index))
	if err != nil {
		return nil, fmt.Errorf("detect: create form: %w", err)
	}
	if err := jpeg.Encode(part, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("detect: encode frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("detect: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &buf)
	if err != nil {
		return nil, fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect: service returned %d: %s", resp.StatusCode, string(body))
	}

	var result httpDetectResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("detect: decode response: %w", err)
	}

	detections := make([]pipeline.RawDetection, 0, len(result.Detections))
	for _, det := range result.Detections {
		if len(det.BBox) != 4 {
			continue
		}
		detections = append(detections, pipeline.RawDetection{
			ClassName:  det.Class,
			Confidence: det.Confidence,
			Box: pipeline.BBox{
				X1: int(det.BBox[0]),
				Y1: int(det.BBox[1]),
				X2: int(det.BBox[2]),
				Y2: int(det.BBox[3]),
			},
		})
	}
	return detections, nil
}

// Close releases client resources
func (d *HTTPDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

var _ pipeline.Detector = (*HTTPDetector)(nil)
