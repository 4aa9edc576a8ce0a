package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds counters for the frame processing pipeline
type Metrics struct {
	FramesRead        atomic.Uint64
	FramesProcessed   atomic.Uint64
	FramesSkipped     atomic.Uint64
	InvalidFrames     atomic.Uint64
	DetectorFallbacks atomic.Uint64
	CrashCandidates   atomic.Uint64
	RunsStarted       atomic.Uint64
	RunsCompleted     atomic.Uint64
	RunsFailed        atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"crashwatch_frames_read_total", "Total frames read from the source", func() float64 { return float64(m.FramesRead.Load()) }},
		{"crashwatch_frames_processed_total", "Total frames sent through the detection pipeline", func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"crashwatch_frames_skipped_total", "Total frames skipped by the sampling stride", func() float64 { return float64(m.FramesSkipped.Load()) }},
		{"crashwatch_invalid_frames_total", "Total malformed frames dropped", func() float64 { return float64(m.InvalidFrames.Load()) }},
		{"crashwatch_detector_fallbacks_total", "Total frames where the synthetic fallback produced detections", func() float64 { return float64(m.DetectorFallbacks.Load()) }},
		{"crashwatch_crash_candidates_total", "Total positive crash candidates", func() float64 { return float64(m.CrashCandidates.Load()) }},
		{"crashwatch_runs_started_total", "Total stream runs started", func() float64 { return float64(m.RunsStarted.Load()) }},
		{"crashwatch_runs_completed_total", "Total stream runs completed", func() float64 { return float64(m.RunsCompleted.Load()) }},
		{"crashwatch_runs_failed_total", "Total stream runs failed", func() float64 { return float64(m.RunsFailed.Load()) }},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// Handler returns an HTTP handler serving the metrics in Prometheus format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
