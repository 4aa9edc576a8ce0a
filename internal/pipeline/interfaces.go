package pipeline

import (
	"context"
	"image"
)

// Detector is the raw object-detection boundary. Implementations wrap real
// detection backends (HTTP microservice, embedded model); class names are
// detector-defined and normalized by the detection adapter.
type Detector interface {
	// Name returns the detector identifier (e.g., "http", "synthetic")
	Name() string

	// IsHealthy returns true if the detector is operational
	IsHealthy() bool

	// Detect runs detection on a frame and returns raw labeled boxes
	Detect(ctx context.Context, frame *FrameData) ([]RawDetection, error)

	// Close releases detector resources
	Close() error
}

// RawDetection is a detector-native result before class normalization
type RawDetection struct {
	ClassName  string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        BBox    `json:"box"`
}

// DetectionSource is the normalized boundary the processor consumes. It never
// fails: implementations degrade to a deterministic fallback and report that
// via the returned flag.
type DetectionSource interface {
	// Detect returns canonical vehicle detections for a frame and whether the
	// synthetic fallback produced them
	Detect(ctx context.Context, frame *FrameData) ([]Detection, bool)
}

// CrashStrategy decides whether a collision is occurring on a frame.
// Implementations must be stateless: the processor owns all cross-frame state
// and passes the previous processed frame's detections explicitly. The
// previous parameter is reserved for velocity-aware strategies.
type CrashStrategy interface {
	// Name returns the strategy identifier
	Name() string

	// Evaluate scores one frame for a collision event
	Evaluate(current, previous []Detection, frameIndex, totalFrames int, bounds image.Rectangle) CrashCandidate
}

// Annotator renders detections and crash overlays onto a frame. Annotate must
// not mutate its inputs and returns a new buffer.
type Annotator interface {
	Annotate(frame *FrameData, detections []Detection, crash CrashCandidate, totalFrames int) *image.RGBA
}

// FrameSource exposes an ordered, finite sequence of decoded frames with
// timing metadata. Next returns io.EOF once the stream is exhausted.
type FrameSource interface {
	// Next returns the next frame in increasing index order
	Next() (*FrameData, error)

	// FrameCount returns the total number of frames reported by the container
	FrameCount() int

	// FPS returns the stream frame rate
	FPS() float64

	// Bounds returns the pixel bounds of the stream's frames
	Bounds() image.Rectangle

	// Close releases underlying resources; safe to call more than once
	Close() error
}

// SourceOpener opens a frame source for a path
type SourceOpener func(path string) (FrameSource, error)

// FrameWriter encodes annotated frames into an output stream
type FrameWriter interface {
	Write(img *image.RGBA) error
	Close() error
}

// WriterOpener creates a frame writer for an output path
type WriterOpener func(path string, fps float64, bounds image.Rectangle) (FrameWriter, error)

// Sink receives one update per processed frame. It is invoked synchronously
// from the processing loop and must not block indefinitely.
type Sink func(update FrameUpdate)
