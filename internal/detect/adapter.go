// Package detect provides the object-detection boundary: a client for a real
// detection service, a deterministic synthetic fallback, and the adapter that
// normalizes either into canonical vehicle detections.
package detect

import (
	"context"
	"log"
	"strings"
	"sync"

	"crashwatch/internal/pipeline"
)

// classMap translates detector-native class names onto the canonical vehicle
// set. Detections with unmapped classes are discarded.
var classMap = map[string]pipeline.VehicleClass{
	"car":        pipeline.ClassCar,
	"automobile": pipeline.ClassCar,
	"truck":      pipeline.ClassTruck,
	"lorry":      pipeline.ClassTruck,
	"bus":        pipeline.ClassBus,
	"motorcycle": pipeline.ClassMotorcycle,
	"motorbike":  pipeline.ClassMotorcycle,
}

// Adapter normalizes detector output into canonical vehicle detections. When
// no detector is configured, the detector is unhealthy, or an invocation
// fails, it degrades to the synthetic generator instead of failing: detector
// trouble never aborts a stream run.
type Adapter struct {
	detector pipeline.Detector // may be nil
	fallback *Synthetic

	mu       sync.Mutex
	degraded bool
}

// NewAdapter creates an adapter over an optional detector. fallback must not
// be nil.
func NewAdapter(detector pipeline.Detector, fallback *Synthetic) *Adapter {
	return &Adapter{detector: detector, fallback: fallback}
}

// Detect returns canonical vehicle detections for a frame. The second return
// reports whether the synthetic fallback produced them.
func (a *Adapter) Detect(ctx context.Context, frame *pipeline.FrameData) ([]pipeline.Detection, bool) {
	if a.detector == nil || !a.detector.IsHealthy() {
		return a.fallback.Generate(frame), true
	}

	raw, err := a.detector.Detect(ctx, frame)
	if err != nil {
		a.reportDegraded(err)
		return a.fallback.Generate(frame), true
	}

	detections := make([]pipeline.Detection, 0, len(raw))
	for _, r := range raw {
		class, ok := classMap[strings.ToLower(r.ClassName)]
		if !ok {
			continue
		}
		detections = append(detections, pipeline.Detection{
			Class:      class,
			Confidence: r.Confidence,
			Box:        r.Box,
		})
	}
	return detections, false
}

// reportDegraded logs the first detector failure; later failures are expected
// to repeat for the rest of the run
func (a *Adapter) reportDegraded(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.degraded {
		return
	}
	a.degraded = true
	log.Printf("[Detect] Detector %s failed, using synthetic fallback: %v", a.detector.Name(), err)
}

var _ pipeline.DetectionSource = (*Adapter)(nil)
