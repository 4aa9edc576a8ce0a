// Package video provides frame sources and the annotated-output writer.
package video

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"

	"gocv.io/x/gocv"

	"crashwatch/internal/pipeline"
)

// ErrNoFrames is returned when a video opens but reports zero frames
var ErrNoFrames = errors.New("video: stream has no frames")

// FileSource decodes frames from a video file via OpenCV. Frames are exposed
// in increasing index order; resources are released on Close or once the
// stream is exhausted and Close is called by the processor.
type FileSource struct {
	capture    *gocv.VideoCapture
	mat        gocv.Mat
	frameCount int
	fps        float64
	bounds     image.Rectangle
	nextIndex  int
	closed     bool
}

// OpenFile opens a video file for frame iteration. It fails if the file
// cannot be opened or reports zero frames.
func OpenFile(path string) (*FileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video: stat %s: %w", path, err)
	}

	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("video: open %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video: open %s: container not readable", path)
	}

	frameCount := int(capture.Get(gocv.VideoCaptureFrameCount))
	fps := capture.Get(gocv.VideoCaptureFPS)
	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))

	if frameCount <= 0 {
		capture.Close()
		return nil, fmt.Errorf("video: open %s: %w", path, ErrNoFrames)
	}
	if fps <= 0 {
		// Containers without timing metadata still play; assume a common rate
		fps = 25.0
	}

	return &FileSource{
		capture:    capture,
		mat:        gocv.NewMat(),
		frameCount: frameCount,
		fps:        fps,
		bounds:     image.Rect(0, 0, width, height),
	}, nil
}

// FrameCount returns the container's reported frame count
func (s *FileSource) FrameCount() int { return s.frameCount }

// FPS returns the stream frame rate
func (s *FileSource) FPS() float64 { return s.fps }

// Bounds returns the frame pixel bounds
func (s *FileSource) Bounds() image.Rectangle { return s.bounds }

// Next decodes and returns the next frame. It returns io.EOF at end of
// stream and pipeline.ErrInvalidFrame for a frame that decoded empty.
func (s *FileSource) Next() (*pipeline.FrameData, error) {
	if s.closed {
		return nil, io.EOF
	}
	if ok := s.capture.Read(&s.mat); !ok {
		return nil, io.EOF
	}

	index := s.nextIndex
	s.nextIndex++

	if s.mat.Empty() {
		return nil, fmt.Errorf("video: frame %d decoded empty: %w", index, pipeline.ErrInvalidFrame)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("video: frame %d convert: %w", index, pipeline.ErrInvalidFrame)
	}

	return &pipeline.FrameData{Index: index, Image: toRGBA(img)}, nil
}

// Close releases the capture; safe to call more than once
func (s *FileSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.capture.Close()
}

// OpenSource adapts OpenFile to the pipeline.SourceOpener signature
func OpenSource(path string) (pipeline.FrameSource, error) {
	return OpenFile(path)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}

var _ pipeline.FrameSource = (*FileSource)(nil)
