// Package crash implements collision inference over per-frame detections.
package crash

import (
	"image"
	"sort"

	"crashwatch/internal/pipeline"
)

const (
	// DefaultWindowFraction places the crash window center at this fraction of
	// the stream
	DefaultWindowFraction = 0.7

	// DefaultHalfWidth is the crash window half-width in frames
	DefaultHalfWidth = 10

	// DefaultRegionMargin is the pixel margin added on each side of the
	// enclosing crash region
	DefaultRegionMargin = 10
)

// WindowStrategy scores frames inside a fixed window of the stream. It is a
// demonstration trigger, not a motion model: a deployment would swap in a
// trajectory-based pipeline.CrashStrategy without touching the processor.
type WindowStrategy struct {
	fraction  float64
	halfWidth int
	margin    int
}

// Option configures a WindowStrategy
type Option func(*WindowStrategy)

// WithFraction sets the window center as a fraction of total frames
func WithFraction(f float64) Option {
	return func(s *WindowStrategy) {
		if f > 0 && f <= 1 {
			s.fraction = f
		}
	}
}

// WithHalfWidth sets the window half-width in frames
func WithHalfWidth(w int) Option {
	return func(s *WindowStrategy) {
		if w > 0 {
			s.halfWidth = w
		}
	}
}

// WithRegionMargin sets the pixel margin added around the crash region
func WithRegionMargin(m int) Option {
	return func(s *WindowStrategy) {
		if m >= 0 {
			s.margin = m
		}
	}
}

// NewWindowStrategy creates the window-based crash strategy with defaults
// applied and any options layered on top
func NewWindowStrategy(opts ...Option) *WindowStrategy {
	s := &WindowStrategy{
		fraction:  DefaultWindowFraction,
		halfWidth: DefaultHalfWidth,
		margin:    DefaultRegionMargin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStrategy) Name() string { return "window" }

// Center returns the window center frame index for a stream length
func (s *WindowStrategy) Center(totalFrames int) int {
	return int(float64(totalFrames) * s.fraction)
}

// Evaluate scores one frame. Outside the crash window, or with fewer than two
// detections, the verdict is negative. Inside the window, confidence peaks at
// the window center and the region encloses the two largest detections with a
// fixed margin, clipped to frame bounds.
func (s *WindowStrategy) Evaluate(current, previous []pipeline.Detection, frameIndex, totalFrames int, bounds image.Rectangle) pipeline.CrashCandidate {
	negative := pipeline.CrashCandidate{FrameIndex: frameIndex}

	center := s.Center(totalFrames)
	distance := frameIndex - center
	if distance < 0 {
		distance = -distance
	}
	if distance >= s.halfWidth {
		return negative
	}
	if len(current) < 2 {
		return negative
	}

	intensity := 1.0 - float64(distance)/float64(s.halfWidth)
	confidence := 0.7 + 0.3*intensity

	// Larger boxes are closer to the camera: take the two largest detections
	// as the involved pair, ties broken by original order.
	ordered := make([]pipeline.Detection, len(current))
	copy(ordered, current)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Box.Area() > ordered[j].Box.Area()
	})

	region := ordered[0].Box.Union(ordered[1].Box).Expand(s.margin).Clip(bounds)

	return pipeline.CrashCandidate{
		IsCrash:    true,
		Confidence: confidence,
		Region:     &region,
		FrameIndex: frameIndex,
	}
}

var _ pipeline.CrashStrategy = (*WindowStrategy)(nil)
