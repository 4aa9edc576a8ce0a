package pipeline

import (
	"image"
)

// VehicleClass is one of the canonical vehicle categories the pipeline tracks
type VehicleClass string

const (
	ClassCar        VehicleClass = "car"
	ClassTruck      VehicleClass = "truck"
	ClassBus        VehicleClass = "bus"
	ClassMotorcycle VehicleClass = "motorcycle"
)

// VehicleClasses lists the canonical classes in a stable order
var VehicleClasses = []VehicleClass{ClassCar, ClassTruck, ClassBus, ClassMotorcycle}

// BBox represents a bounding box in pixel coordinates (X1 < X2, Y1 < Y2)
type BBox struct {
	X1 int `json:"x1"` // Left
	Y1 int `json:"y1"` // Top
	X2 int `json:"x2"` // Right
	Y2 int `json:"y2"` // Bottom
}

// Width returns the box width in pixels
func (b BBox) Width() int { return b.X2 - b.X1 }

// Height returns the box height in pixels
func (b BBox) Height() int { return b.Y2 - b.Y1 }

// Area returns the box area in pixels
func (b BBox) Area() int { return b.Width() * b.Height() }

// Rect converts the box to an image.Rectangle
func (b BBox) Rect() image.Rectangle { return image.Rect(b.X1, b.Y1, b.X2, b.Y2) }

// Expand grows the box by margin pixels on each side
func (b BBox) Expand(margin int) BBox {
	return BBox{X1: b.X1 - margin, Y1: b.Y1 - margin, X2: b.X2 + margin, Y2: b.Y2 + margin}
}

// Clip constrains the box to the given frame bounds
func (b BBox) Clip(bounds image.Rectangle) BBox {
	c := b
	if c.X1 < bounds.Min.X {
		c.X1 = bounds.Min.X
	}
	if c.Y1 < bounds.Min.Y {
		c.Y1 = bounds.Min.Y
	}
	if c.X2 > bounds.Max.X {
		c.X2 = bounds.Max.X
	}
	if c.Y2 > bounds.Max.Y {
		c.Y2 = bounds.Max.Y
	}
	return c
}

// Union returns the smallest box enclosing both boxes
func (b BBox) Union(o BBox) BBox {
	u := b
	if o.X1 < u.X1 {
		u.X1 = o.X1
	}
	if o.Y1 < u.Y1 {
		u.Y1 = o.Y1
	}
	if o.X2 > u.X2 {
		u.X2 = o.X2
	}
	if o.Y2 > u.Y2 {
		u.Y2 = o.Y2
	}
	return u
}

// Detection represents a single labeled vehicle detection for one frame.
// Detections are ephemeral: produced per frame and retained only for the
// adjacent-frame window the crash strategy needs.
type Detection struct {
	Class      VehicleClass `json:"class"`
	Confidence float64      `json:"confidence"` // [0,1]
	Box        BBox         `json:"box"`
}

// FrameData represents one decoded video frame with its position in the stream
type FrameData struct {
	Index int         // 0-based frame index, strictly increasing
	Image *image.RGBA // Decoded pixels
}

// Bounds returns the pixel bounds of the frame, or the zero rectangle if the
// frame carries no image
func (f *FrameData) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// CrashCandidate is the crash strategy's verdict for one evaluated frame
type CrashCandidate struct {
	IsCrash    bool    `json:"is_crash"`
	Confidence float64 `json:"confidence"` // [0,1], 0 when IsCrash is false
	Region     *BBox   `json:"region,omitempty"`
	FrameIndex int     `json:"frame_index"`
}

// FrameUpdate is delivered to the sink once per processed frame
type FrameUpdate struct {
	RunID        string
	Image        *image.RGBA // Annotated frame
	FrameIndex   int
	Timestamp    float64 // Seconds from stream start
	Detections   []Detection
	Crash        CrashCandidate
	FallbackUsed bool // Detections came from the synthetic fallback
}

// StreamResult summarizes one complete stream run. Produced once, at the end
// of processing, and returned to the presentation layer.
type StreamResult struct {
	RunID           string      `json:"run_id"`
	CrashDetected   bool        `json:"crash_detected"`
	CrashConfidence float64     `json:"crash_confidence"`
	CrashTime       float64     `json:"crash_time"` // Seconds from stream start
	CrashFrame      *image.RGBA `json:"-"`          // Annotated frame of the best candidate
	CrashFrameIndex int         `json:"crash_frame_index"`
	TotalFrames     int         `json:"total_frames"`
	FPS             float64     `json:"fps"`
	FramesProcessed int         `json:"frames_processed"`
	InvalidFrames   int         `json:"invalid_frames"`
	FallbackUsed    bool        `json:"fallback_used"`
}

// State identifies where a Processor is in its run lifecycle
type State string

const (
	StateIdle       State = "idle"
	StateOpened     State = "opened"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)
