package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"crashwatch/internal/metrics"
)

// DefaultStride is the default frame sampling interval
const DefaultStride = 5

// ErrBusy is returned when Process is called while a run is in progress.
// A Processor drives one stream at a time.
var ErrBusy = errors.New("pipeline: processor busy")

// ErrInvalidFrame is returned by frame sources for a decoded frame that is
// malformed (empty or wrong shape). The processor drops such frames without
// aborting the run.
var ErrInvalidFrame = errors.New("pipeline: invalid frame")

// ProcessOptions configures a single stream run
type ProcessOptions struct {
	// Stride is the sampling interval: only frames where index%Stride == 0 go
	// through detection. Zero means DefaultStride.
	Stride int

	// Sink, if set, receives one update per processed frame
	Sink Sink

	// OutputPath, if set, is where the annotated video is written. Requires a
	// writer opener on the processor.
	OutputPath string
}

// Processor drives the frame pipeline: source -> detection -> crash inference
// -> annotation, aggregating the single best crash candidate for the stream.
// It owns all cross-frame state (previous detections, best-crash-so-far) so
// the crash strategy stays stateless.
type Processor struct {
	opener       SourceOpener
	detections   DetectionSource
	strategy     CrashStrategy
	annotator    Annotator
	writerOpener WriterOpener
	metrics      *metrics.Metrics

	mu      sync.Mutex
	state   State
	running bool
}

// NewProcessor creates a stream processor from its injected collaborators
func NewProcessor(opener SourceOpener, detections DetectionSource, strategy CrashStrategy, annotator Annotator) *Processor {
	return &Processor{
		opener:     opener,
		detections: detections,
		strategy:   strategy,
		annotator:  annotator,
		state:      StateIdle,
	}
}

// SetWriterOpener enables annotated video output for runs that request it
func (p *Processor) SetWriterOpener(opener WriterOpener) {
	p.writerOpener = opener
}

// SetMetrics attaches pipeline counters
func (p *Processor) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// State returns the current run state
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Processor) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Process runs the full pipeline over the video at path and returns the
// stream summary. Stream open and read failures are fatal to the run;
// per-frame anomalies degrade gracefully. The source is closed on every exit
// path, including cancellation.
func (p *Processor) Process(ctx context.Context, path string, opts ProcessOptions) (*StreamResult, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.running = true
	p.state = StateIdle
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	stride := opts.Stride
	if stride <= 0 {
		stride = DefaultStride
	}

	runID := uuid.New().String()
	if p.metrics != nil {
		p.metrics.RunsStarted.Add(1)
	}
	log.Printf("[Processor] Run %s: opening %s (stride %d)", runID, path, stride)

	source, err := p.opener(path)
	if err != nil {
		p.setState(StateFailed)
		if p.metrics != nil {
			p.metrics.RunsFailed.Add(1)
		}
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	defer source.Close()
	p.setState(StateOpened)

	var writer FrameWriter
	if opts.OutputPath != "" && p.writerOpener != nil {
		writer, err = p.writerOpener(opts.OutputPath, source.FPS(), source.Bounds())
		if err != nil {
			p.setState(StateFailed)
			if p.metrics != nil {
				p.metrics.RunsFailed.Add(1)
			}
			return nil, fmt.Errorf("open output %s: %w", opts.OutputPath, err)
		}
		defer writer.Close()
	}

	p.setState(StateProcessing)

	result := &StreamResult{
		RunID:       runID,
		TotalFrames: source.FrameCount(),
		FPS:         source.FPS(),
	}

	// Cross-frame state: detections from the last processed (non-skipped)
	// frame, and the highest-confidence crash candidate so far.
	var previous []Detection
	var best *CrashCandidate

	for {
		select {
		case <-ctx.Done():
			p.setState(StateFailed)
			if p.metrics != nil {
				p.metrics.RunsFailed.Add(1)
			}
			return nil, fmt.Errorf("run %s cancelled: %w", runID, ctx.Err())
		default:
		}

		frame, err := source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, ErrInvalidFrame) {
				// Malformed frame: drop it, keep previous detections intact
				result.InvalidFrames++
				if p.metrics != nil {
					p.metrics.InvalidFrames.Add(1)
				}
				continue
			}
			p.setState(StateFailed)
			if p.metrics != nil {
				p.metrics.RunsFailed.Add(1)
			}
			return nil, fmt.Errorf("read stream %s: %w", path, err)
		}
		if p.metrics != nil {
			p.metrics.FramesRead.Add(1)
		}

		if frame.Index%stride != 0 {
			if p.metrics != nil {
				p.metrics.FramesSkipped.Add(1)
			}
			// Skipped frames pass through to the output unmodified
			if writer != nil {
				if err := writer.Write(frame.Image); err != nil {
					log.Printf("[Processor] Run %s: output write failed at frame %d: %v", runID, frame.Index, err)
				}
			}
			continue
		}

		detections, fallback := p.detections.Detect(ctx, frame)
		if fallback {
			result.FallbackUsed = true
			if p.metrics != nil {
				p.metrics.DetectorFallbacks.Add(1)
			}
		}

		candidate := p.strategy.Evaluate(detections, previous, frame.Index, result.TotalFrames, frame.Bounds())
		annotated := p.annotator.Annotate(frame, detections, candidate, result.TotalFrames)

		previous = detections
		result.FramesProcessed++
		if p.metrics != nil {
			p.metrics.FramesProcessed.Add(1)
		}

		if candidate.IsCrash {
			if p.metrics != nil {
				p.metrics.CrashCandidates.Add(1)
			}
			// Overwrite the best candidate only on strict improvement
			if best == nil || candidate.Confidence > best.Confidence {
				c := candidate
				best = &c
				result.CrashDetected = true
				result.CrashConfidence = candidate.Confidence
				result.CrashFrameIndex = frame.Index
				result.CrashTime = timestamp(frame.Index, result.FPS)
				result.CrashFrame = cloneRGBA(annotated)
				log.Printf("[Processor] Run %s: crash candidate at frame %d (confidence %.2f)",
					runID, frame.Index, candidate.Confidence)
			}
		}

		if writer != nil {
			if err := writer.Write(annotated); err != nil {
				log.Printf("[Processor] Run %s: output write failed at frame %d: %v", runID, frame.Index, err)
			}
		}

		if opts.Sink != nil {
			opts.Sink(FrameUpdate{
				RunID:        runID,
				Image:        annotated,
				FrameIndex:   frame.Index,
				Timestamp:    timestamp(frame.Index, result.FPS),
				Detections:   detections,
				Crash:        candidate,
				FallbackUsed: fallback,
			})
		}
	}

	p.setState(StateCompleted)
	if p.metrics != nil {
		p.metrics.RunsCompleted.Add(1)
	}
	log.Printf("[Processor] Run %s: completed (%d frames processed, crash=%v)",
		runID, result.FramesProcessed, result.CrashDetected)
	return result, nil
}

func timestamp(frameIndex int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frameIndex) / fps
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	if src == nil {
		return nil
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
