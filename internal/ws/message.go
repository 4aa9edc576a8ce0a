package ws

import (
	"crashwatch/internal/pipeline"
)

// FrameMessage broadcasts one processed frame to dashboard clients
type FrameMessage struct {
	Type         string               `json:"type"` // "frame"
	RunID        string               `json:"run_id"`
	FrameIndex   int                  `json:"frame_index"`
	Timestamp    float64              `json:"timestamp"` // Seconds from stream start
	Detections   []pipeline.Detection `json:"detections"`
	Crash        *CrashOverlay        `json:"crash,omitempty"`
	FallbackUsed bool                 `json:"fallback_used"`
	Frame        string               `json:"frame,omitempty"` // Base64 encoded JPEG
}

// CrashOverlay carries the crash region for client-side rendering
type CrashOverlay struct {
	Confidence float64       `json:"confidence"`
	Region     pipeline.BBox `json:"region"`
}

// ResultMessage broadcasts the final stream summary
type ResultMessage struct {
	Type   string                 `json:"type"` // "result"
	Result *pipeline.StreamResult `json:"result"`
}

// NewFrameMessage builds a frame message from a pipeline update
func NewFrameMessage(update pipeline.FrameUpdate) *FrameMessage {
	msg := &FrameMessage{
		Type:         "frame",
		RunID:        update.RunID,
		FrameIndex:   update.FrameIndex,
		Timestamp:    update.Timestamp,
		Detections:   update.Detections,
		FallbackUsed: update.FallbackUsed,
	}
	if update.Crash.IsCrash && update.Crash.Region != nil {
		msg.Crash = &CrashOverlay{
			Confidence: update.Crash.Confidence,
			Region:     *update.Crash.Region,
		}
	}
	return msg
}

// NewResultMessage builds a result message from a stream summary
func NewResultMessage(result *pipeline.StreamResult) *ResultMessage {
	return &ResultMessage{Type: "result", Result: result}
}
