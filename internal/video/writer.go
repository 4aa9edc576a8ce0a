package video

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"crashwatch/internal/pipeline"
)

// Writer encodes annotated frames into an mp4 file via OpenCV
type Writer struct {
	writer *gocv.VideoWriter
	closed bool
}

// NewWriter creates a video writer for the given path, frame rate and frame
// bounds
func NewWriter(path string, fps float64, bounds image.Rectangle) (*Writer, error) {
	if fps <= 0 {
		fps = 25.0
	}
	vw, err := gocv.VideoWriterFile(path, "mp4v", fps, bounds.Dx(), bounds.Dy(), true)
	if err != nil {
		return nil, fmt.Errorf("video: create writer %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("video: create writer %s: encoder not available", path)
	}
	return &Writer{writer: vw}, nil
}

// Write encodes one frame
func (w *Writer) Write(img *image.RGBA) error {
	if w.closed {
		return fmt.Errorf("video: writer closed")
	}
	if img == nil {
		return fmt.Errorf("video: nil frame")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("video: convert frame: %w", err)
	}
	defer mat.Close()
	gocv.CvtColor(mat, &mat, gocv.ColorRGBToBGR)

	return w.writer.Write(mat)
}

// Close finalizes the output file; safe to call more than once
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.writer.Close()
}

// OpenWriter adapts NewWriter to the pipeline.WriterOpener signature
func OpenWriter(path string, fps float64, bounds image.Rectangle) (pipeline.FrameWriter, error) {
	return NewWriter(path, fps, bounds)
}

var _ pipeline.FrameWriter = (*Writer)(nil)
