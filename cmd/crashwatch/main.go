package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"image/jpeg"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"crashwatch/internal/annotate"
	"crashwatch/internal/config"
	"crashwatch/internal/crash"
	"crashwatch/internal/detect"
	"crashwatch/internal/metrics"
	"crashwatch/internal/pipeline"
	"crashwatch/internal/scan"
	"crashwatch/internal/video"
	"crashwatch/internal/ws"
)

func main() {
	var (
		videoF     = flag.String("video", "", "Input video path (scans VIDEO_DIR when empty)")
		strideF    = flag.Int("stride", 0, "Frame sampling stride (overrides FRAME_STRIDE)")
		outF       = flag.String("out", "", "Annotated output video path")
		serveF     = flag.Bool("serve", false, "Serve live results over WebSocket and metrics")
		syntheticF = flag.Int("synthetic", 0, "Run over a synthetic stream of N frames instead of a file")
		fpsF       = flag.Float64("fps", 30.0, "Frame rate for the synthetic stream")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[crashwatch] ", log.Ltime)
	cfg := config.Load()

	stride := cfg.FrameStride
	if *strideF > 0 {
		stride = *strideF
	}

	// Detector is injected explicitly; with no endpoint configured the
	// adapter runs on the synthetic fallback alone.
	var detector pipeline.Detector
	if cfg.DetectorEndpoint != "" {
		httpDetector := detect.NewHTTPDetector(detect.HTTPDetectorConfig{
			Endpoint: cfg.DetectorEndpoint,
			Timeout:  cfg.DetectorTimeout,
		})
		defer httpDetector.Close()
		detector = httpDetector
		logger.Printf("Using detection service at %s", cfg.DetectorEndpoint)
	} else {
		logger.Printf("No detector configured; using synthetic fallback (seed %d)", cfg.SyntheticSeed)
	}

	adapter := detect.NewAdapter(detector, detect.NewSynthetic(cfg.SyntheticSeed))
	strategy := crash.NewWindowStrategy(
		crash.WithFraction(cfg.WindowFraction),
		crash.WithHalfWidth(cfg.WindowHalfWidth),
		crash.WithRegionMargin(cfg.RegionMargin),
	)

	var opener pipeline.SourceOpener
	inputPath := *videoF
	if *syntheticF > 0 {
		opener = video.OpenSynthetic(*syntheticF, *fpsF)
		inputPath = fmt.Sprintf("synthetic:%d", *syntheticF)
	} else {
		opener = video.OpenSource
		if inputPath == "" {
			candidates, err := scan.FindVideos(cfg.VideoDir)
			if err != nil || len(candidates) == 0 {
				logger.Fatalf("No input video found under %s (use -video or -synthetic): %v", cfg.VideoDir, err)
			}
			inputPath = candidates[0]
			logger.Printf("Selected input video %s", inputPath)
		}
	}

	processor := pipeline.NewProcessor(opener, adapter, strategy, annotate.New())
	processor.SetWriterOpener(video.OpenWriter)

	m := metrics.New()
	processor.SetMetrics(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop gracefully on SIGINT/SIGTERM; the processor checks between frames
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Printf("Received %s, stopping", s)
		cancel()
	}()

	var hub *ws.Hub
	var sink pipeline.Sink
	if *serveF {
		hub = ws.NewHub()
		defer hub.Close()

		mux := http.NewServeMux()
		mux.Handle("/ws", ws.Handler(hub))
		mux.Handle("/metrics", m.Handler())
		server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
		go func() {
			logger.Printf("Serving /ws and /metrics on %s", cfg.ListenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("HTTP server error: %v", err)
			}
		}()
		defer server.Close()

		sink = func(update pipeline.FrameUpdate) {
			if !hub.HasClients() {
				return
			}
			msg := ws.NewFrameMessage(update)
			if frame := encodeFrame(update); frame != "" {
				msg.Frame = frame
			}
			hub.Broadcast(msg)
		}
	}

	outputPath := *outF
	if outputPath != "" && !filepath.IsAbs(outputPath) {
		outputPath = filepath.Join(cfg.OutputDir, outputPath)
	}

	result, err := processor.Process(ctx, inputPath, pipeline.ProcessOptions{
		Stride:     stride,
		Sink:       sink,
		OutputPath: outputPath,
	})
	if err != nil {
		logger.Fatalf("Processing failed: %v", err)
	}

	if hub != nil {
		hub.Broadcast(ws.NewResultMessage(result))
	}

	if result.CrashDetected {
		logger.Printf("ACCIDENT DETECTED: confidence %.2f at %.2fs (frame %d of %d)",
			result.CrashConfidence, result.CrashTime, result.CrashFrameIndex, result.TotalFrames)
	} else {
		logger.Printf("No incidents detected (%d frames processed)", result.FramesProcessed)
	}
	if result.FallbackUsed {
		logger.Printf("Note: synthetic fallback detections were used during this run")
	}
}

// encodeFrame renders the annotated frame as base64 JPEG for ws clients
func encodeFrame(update pipeline.FrameUpdate) string {
	if update.Image == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, update.Image, &jpeg.Options{Quality: 80}); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
