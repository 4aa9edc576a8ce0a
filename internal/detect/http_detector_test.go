package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func detectorServer(t *testing.T, handler http.HandlerFunc) *HTTPDetector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPDetector(HTTPDetectorConfig{Endpoint: server.URL, Timeout: 2 * time.Second})
}

func TestHTTPDetector_Detect(t *testing.T) {
	detector := detectorServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/detect":
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				t.Errorf("Expected multipart upload, got %s", r.Header.Get("Content-Type"))
			}
			if _, _, err := r.FormFile("file"); err != nil {
				t.Errorf("Missing frame file in upload: %v", err)
			}
			json.NewEncoder(w).Encode(httpDetectResult{
				Detections: []httpDetection{
					{Class: "car", Confidence: 0.93, BBox: []float64{10, 20, 110, 90}},
					{Class: "bus", Confidence: 0.81, BBox: []float64{200, 100, 380, 240}},
					{Class: "truck", Confidence: 0.75, BBox: []float64{5, 5}}, // malformed, dropped
				},
				Count: 3,
			})
		default:
			http.NotFound(w, r)
		}
	})

	if !detector.IsHealthy() {
		t.Fatal("Expected healthy detector")
	}

	detections, err := detector.Detect(context.Background(), testFrame(3))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("Expected 2 well-formed detections, got %d", len(detections))
	}
	if detections[0].ClassName != "car" || detections[0].Confidence != 0.93 {
		t.Errorf("Unexpected first detection: %+v", detections[0])
	}
	if detections[0].Box.X1 != 10 || detections[0].Box.Y2 != 90 {
		t.Errorf("Box coordinates not mapped: %+v", detections[0].Box)
	}
}

func TestHTTPDetector_ServiceError(t *testing.T) {
	detector := detectorServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	if _, err := detector.Detect(context.Background(), testFrame(0)); err == nil {
		t.Fatal("Expected error for a 500 response")
	}
	if detector.IsHealthy() {
		t.Error("Expected unhealthy detector when health probe fails")
	}
}

func TestHTTPDetector_Unreachable(t *testing.T) {
	detector := NewHTTPDetector(HTTPDetectorConfig{
		Endpoint: "http://127.0.0.1:1",
		Timeout:  200 * time.Millisecond,
	})

	if detector.IsHealthy() {
		t.Error("Expected unhealthy detector for unreachable endpoint")
	}
	if _, err := detector.Detect(context.Background(), testFrame(0)); err == nil {
		t.Fatal("Expected error for unreachable endpoint")
	}
}

func TestHTTPDetector_BadResponse(t *testing.T) {
	detector := detectorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	if _, err := detector.Detect(context.Background(), testFrame(0)); err == nil {
		t.Fatal("Expected error for malformed response body")
	}
}

func TestHTTPDetector_EmptyFrame(t *testing.T) {
	detector := detectorServer(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := detector.Detect(context.Background(), nil); err == nil {
		t.Fatal("Expected error for nil frame")
	}
}
