package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"testing"

	"crashwatch/internal/annotate"
	"crashwatch/internal/crash"
	"crashwatch/internal/detect"
	"crashwatch/internal/metrics"
	"crashwatch/internal/pipeline"
	"crashwatch/internal/video"
)

func newTestProcessor(opener pipeline.SourceOpener, seed int64) *pipeline.Processor {
	adapter := detect.NewAdapter(nil, detect.NewSynthetic(seed))
	return pipeline.NewProcessor(opener, adapter, crash.NewWindowStrategy(), annotate.New())
}

func TestProcessor_SyntheticStream(t *testing.T) {
	// 100 frames at 30 fps, stride 5: the crash window centers at frame 70,
	// which is itself a processed frame, so the best candidate lands there.
	opener := video.OpenSynthetic(100, 30)
	processor := newTestProcessor(opener, 42)
	m := metrics.New()
	processor.SetMetrics(m)

	var updates []pipeline.FrameUpdate
	result, err := processor.Process(context.Background(), "synthetic", pipeline.ProcessOptions{
		Stride: 5,
		Sink:   func(u pipeline.FrameUpdate) { updates = append(updates, u) },
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !result.CrashDetected {
		t.Fatal("Expected a crash in the synthetic stream")
	}
	if result.CrashFrameIndex != 70 {
		t.Errorf("Expected best candidate at frame 70, got %d", result.CrashFrameIndex)
	}
	wantTime := 70.0 / 30.0
	if math.Abs(result.CrashTime-wantTime) > 5.0/30.0 {
		t.Errorf("Crash time %f more than one stride from %f", result.CrashTime, wantTime)
	}
	if result.CrashConfidence != 1.0 {
		t.Errorf("Expected peak confidence at the window center, got %f", result.CrashConfidence)
	}
	if result.CrashFrame == nil {
		t.Error("Expected an annotated crash frame")
	}
	if result.TotalFrames != 100 || result.FPS != 30 {
		t.Errorf("Stream metadata lost: total=%d fps=%f", result.TotalFrames, result.FPS)
	}
	if result.FramesProcessed != 20 {
		t.Errorf("Expected 20 processed frames at stride 5, got %d", result.FramesProcessed)
	}
	if !result.FallbackUsed {
		t.Error("Expected fallback flag with no detector configured")
	}
	if result.RunID == "" {
		t.Error("Expected a run ID")
	}
	if processor.State() != pipeline.StateCompleted {
		t.Errorf("Expected state completed, got %s", processor.State())
	}

	t.Run("SinkUpdates", func(t *testing.T) {
		if len(updates) != 20 {
			t.Fatalf("Expected 20 sink updates, got %d", len(updates))
		}
		for i, u := range updates {
			if u.FrameIndex != i*5 {
				t.Errorf("Update %d: expected frame %d, got %d", i, i*5, u.FrameIndex)
			}
			if math.Abs(u.Timestamp-float64(u.FrameIndex)/30.0) > 1e-9 {
				t.Errorf("Update %d: wrong timestamp %f", i, u.Timestamp)
			}
			if u.Image == nil {
				t.Errorf("Update %d: missing annotated frame", i)
			}
			if u.RunID != result.RunID {
				t.Errorf("Update %d: run ID mismatch", i)
			}
		}
	})

	t.Run("BestNeverRegresses", func(t *testing.T) {
		best := 0.0
		for _, u := range updates {
			if u.Crash.IsCrash && u.Crash.Confidence > best {
				best = u.Crash.Confidence
			}
		}
		if result.CrashConfidence != best {
			t.Errorf("Stored best %f is not the maximum candidate confidence %f",
				result.CrashConfidence, best)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		if got := m.FramesRead.Load(); got != 100 {
			t.Errorf("Expected 100 frames read, got %d", got)
		}
		if got := m.FramesProcessed.Load(); got != 20 {
			t.Errorf("Expected 20 frames processed, got %d", got)
		}
		if got := m.FramesSkipped.Load(); got != 80 {
			t.Errorf("Expected 80 frames skipped, got %d", got)
		}
		if got := m.RunsCompleted.Load(); got != 1 {
			t.Errorf("Expected 1 completed run, got %d", got)
		}
	})
}

func TestProcessor_ReplayIdempotent(t *testing.T) {
	opener := video.OpenSynthetic(100, 30)
	processor := newTestProcessor(opener, 42)

	first, err := processor.Process(context.Background(), "synthetic", pipeline.ProcessOptions{Stride: 5})
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := processor.Process(context.Background(), "synthetic", pipeline.ProcessOptions{Stride: 5})
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if first.CrashDetected != second.CrashDetected ||
		first.CrashConfidence != second.CrashConfidence ||
		first.CrashFrameIndex != second.CrashFrameIndex ||
		first.FramesProcessed != second.FramesProcessed {
		t.Errorf("Replays differ: %+v vs %+v", first, second)
	}
}

func TestProcessor_OpenFailure(t *testing.T) {
	opener := func(path string) (pipeline.FrameSource, error) {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	processor := newTestProcessor(opener, 42)

	result, err := processor.Process(context.Background(), "/missing.mp4", pipeline.ProcessOptions{})
	if err == nil {
		t.Fatal("Expected error for missing input")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected wrapped os.ErrNotExist, got %v", err)
	}
	if result != nil {
		t.Error("Expected no partial result on open failure")
	}
	if processor.State() != pipeline.StateFailed {
		t.Errorf("Expected state failed, got %s", processor.State())
	}
}

// closeTracking records whether the processor released the source
type closeTracking struct {
	pipeline.FrameSource
	closed bool
}

func (c *closeTracking) Close() error {
	c.closed = true
	return c.FrameSource.Close()
}

func TestProcessor_Cancellation(t *testing.T) {
	source, err := video.NewSyntheticSource(1000, 30)
	if err != nil {
		t.Fatalf("Synthetic source: %v", err)
	}
	tracked := &closeTracking{FrameSource: source}
	opener := func(string) (pipeline.FrameSource, error) { return tracked, nil }
	processor := newTestProcessor(opener, 42)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := processor.Process(ctx, "synthetic", pipeline.ProcessOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if !tracked.closed {
		t.Error("Source was not closed on cancellation")
	}
}

// scriptedSource replays a fixed sequence of frames and errors
type scriptedSource struct {
	steps []scriptedStep
	pos   int
}

type scriptedStep struct {
	frame *pipeline.FrameData
	err   error
}

func (s *scriptedSource) Next() (*pipeline.FrameData, error) {
	if s.pos >= len(s.steps) {
		return nil, io.EOF
	}
	step := s.steps[s.pos]
	s.pos++
	return step.frame, step.err
}

func (s *scriptedSource) FrameCount() int { return len(s.steps) }

func (s *scriptedSource) FPS() float64 { return 30 }

func (s *scriptedSource) Bounds() image.Rectangle { return image.Rect(0, 0, 640, 480) }

func (s *scriptedSource) Close() error { return nil }

func syntheticFrame(index int) *pipeline.FrameData {
	return &pipeline.FrameData{Index: index, Image: image.NewRGBA(image.Rect(0, 0, 640, 480))}
}

func TestProcessor_InvalidFramesSkipped(t *testing.T) {
	source := &scriptedSource{steps: []scriptedStep{
		{frame: syntheticFrame(0)},
		{err: fmt.Errorf("decode: %w", pipeline.ErrInvalidFrame)},
		{frame: syntheticFrame(1)},
		{err: fmt.Errorf("decode: %w", pipeline.ErrInvalidFrame)},
		{frame: syntheticFrame(2)},
	}}
	opener := func(string) (pipeline.FrameSource, error) { return source, nil }
	processor := newTestProcessor(opener, 42)

	result, err := processor.Process(context.Background(), "scripted", pipeline.ProcessOptions{Stride: 1})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.InvalidFrames != 2 {
		t.Errorf("Expected 2 invalid frames counted, got %d", result.InvalidFrames)
	}
	if result.FramesProcessed != 3 {
		t.Errorf("Expected 3 processed frames, got %d", result.FramesProcessed)
	}
}

func TestProcessor_ReadFailureFatal(t *testing.T) {
	readErr := errors.New("i/o error mid-stream")
	source := &scriptedSource{steps: []scriptedStep{
		{frame: syntheticFrame(0)},
		{err: readErr},
	}}
	opener := func(string) (pipeline.FrameSource, error) { return source, nil }
	processor := newTestProcessor(opener, 42)

	if _, err := processor.Process(context.Background(), "scripted", pipeline.ProcessOptions{Stride: 1}); !errors.Is(err, readErr) {
		t.Fatalf("Expected wrapped read error, got %v", err)
	}
	if processor.State() != pipeline.StateFailed {
		t.Errorf("Expected state failed, got %s", processor.State())
	}
}

// blockingSource gates Next so a run can be held open from the test
type blockingSource struct {
	started chan struct{}
	release chan struct{}
	once    bool
}

func (b *blockingSource) Next() (*pipeline.FrameData, error) {
	if !b.once {
		b.once = true
		close(b.started)
		<-b.release
	}
	return nil, io.EOF
}

func (b *blockingSource) FrameCount() int { return 1 }

func (b *blockingSource) FPS() float64 { return 30 }

func (b *blockingSource) Bounds() image.Rectangle { return image.Rect(0, 0, 640, 480) }

func (b *blockingSource) Close() error { return nil }

func TestProcessor_Busy(t *testing.T) {
	source := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	opener := func(string) (pipeline.FrameSource, error) { return source, nil }
	processor := newTestProcessor(opener, 42)

	done := make(chan error, 1)
	go func() {
		_, err := processor.Process(context.Background(), "blocking", pipeline.ProcessOptions{})
		done <- err
	}()

	<-source.started
	if _, err := processor.Process(context.Background(), "blocking", pipeline.ProcessOptions{}); !errors.Is(err, pipeline.ErrBusy) {
		t.Errorf("Expected ErrBusy for concurrent run, got %v", err)
	}

	close(source.release)
	if err := <-done; err != nil {
		t.Fatalf("First run failed: %v", err)
	}
}

// recordingWriter captures frames written to the output
type recordingWriter struct {
	frames int
	closed bool
}

func (w *recordingWriter) Write(img *image.RGBA) error {
	if img == nil {
		return errors.New("nil frame")
	}
	w.frames++
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestProcessor_OutputPassthrough(t *testing.T) {
	// Skipped frames pass through to the output unmodified, so the output
	// keeps the full stream timeline.
	writer := &recordingWriter{}
	opener := video.OpenSynthetic(50, 25)
	processor := newTestProcessor(opener, 42)
	processor.SetWriterOpener(func(path string, fps float64, bounds image.Rectangle) (pipeline.FrameWriter, error) {
		if fps != 25 {
			t.Errorf("Expected writer fps 25, got %f", fps)
		}
		return writer, nil
	})

	if _, err := processor.Process(context.Background(), "synthetic", pipeline.ProcessOptions{
		Stride:     5,
		OutputPath: "out.mp4",
	}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if writer.frames != 50 {
		t.Errorf("Expected all 50 frames written, got %d", writer.frames)
	}
	if !writer.closed {
		t.Error("Writer was not closed")
	}
}
