package video

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"crashwatch/internal/pipeline"
)

const (
	syntheticWidth  = 640
	syntheticHeight = 480
)

// SyntheticSource renders a simulated traffic stream: a dark background with
// two vehicles converging over the course of the stream. It exists so the
// full pipeline can run and be tested without codecs or sample footage.
type SyntheticSource struct {
	frameCount int
	fps        float64
	bounds     image.Rectangle
	nextIndex  int
	closed     bool
}

// NewSyntheticSource creates a synthetic stream of frameCount frames at the
// given frame rate
func NewSyntheticSource(frameCount int, fps float64) (*SyntheticSource, error) {
	if frameCount <= 0 {
		return nil, fmt.Errorf("video: synthetic stream: %w", ErrNoFrames)
	}
	if fps <= 0 {
		fps = 25.0
	}
	return &SyntheticSource{
		frameCount: frameCount,
		fps:        fps,
		bounds:     image.Rect(0, 0, syntheticWidth, syntheticHeight),
	}, nil
}

// FrameCount returns the stream length in frames
func (s *SyntheticSource) FrameCount() int { return s.frameCount }

// FPS returns the stream frame rate
func (s *SyntheticSource) FPS() float64 { return s.fps }

// Bounds returns the frame pixel bounds
func (s *SyntheticSource) Bounds() image.Rectangle { return s.bounds }

// Next renders and returns the next frame, or io.EOF past the end
func (s *SyntheticSource) Next() (*pipeline.FrameData, error) {
	if s.closed || s.nextIndex >= s.frameCount {
		return nil, io.EOF
	}
	index := s.nextIndex
	s.nextIndex++
	return &pipeline.FrameData{Index: index, Image: s.render(index)}, nil
}

// Close marks the stream exhausted; safe to call more than once
func (s *SyntheticSource) Close() error {
	s.closed = true
	return nil
}

// render draws the simulated scene: two vehicles moving toward each other as
// the stream progresses
func (s *SyntheticSource) render(index int) *image.RGBA {
	img := image.NewRGBA(s.bounds)
	background := color.RGBA{R: 30, G: 30, B: 46, A: 255}
	draw.Draw(img, s.bounds, &image.Uniform{C: background}, image.Point{}, draw.Src)

	progress := float64(index) / float64(s.frameCount)

	car1X := int(100 + progress*400)
	car2X := int(500 - progress*200)

	fillBox(img, car1X, 200, 80, 40, color.RGBA{R: 180, G: 180, B: 190, A: 255})
	fillBox(img, car2X, 240, 80, 40, color.RGBA{R: 140, G: 150, B: 170, A: 255})

	return img
}

func fillBox(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	r := image.Rect(x, y, x+w, y+h).Intersect(img.Bounds())
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// OpenSynthetic returns a pipeline.SourceOpener that ignores the path and
// produces a synthetic stream. Used for demo runs without input footage.
func OpenSynthetic(frameCount int, fps float64) pipeline.SourceOpener {
	return func(string) (pipeline.FrameSource, error) {
		return NewSyntheticSource(frameCount, fps)
	}
}

var _ pipeline.FrameSource = (*SyntheticSource)(nil)
