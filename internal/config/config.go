// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings
type Config struct {
	DetectorEndpoint string        // Detection service base URL; empty means synthetic fallback only
	DetectorTimeout  time.Duration // Per-request detector timeout
	FrameStride      int           // Process every Nth frame
	WindowFraction   float64       // Crash window center as a fraction of the stream
	WindowHalfWidth  int           // Crash window half-width in frames
	RegionMargin     int           // Pixel margin around the crash region
	SyntheticSeed    int64         // Seed for the fallback detection generator
	VideoDir         string        // Root scanned for demo input videos
	OutputDir        string        // Where annotated output videos are written
	ListenAddr       string        // Address for the ws/metrics HTTP surface
}

// Load reads configuration from a .env file (when present) and the
// environment
func Load() *Config {
	// Missing .env is not an error; environment variables still apply
	_ = godotenv.Load()

	return &Config{
		DetectorEndpoint: getEnv("DETECTOR_ENDPOINT", ""),
		DetectorTimeout:  time.Duration(getEnvAsInt("DETECTOR_TIMEOUT_MS", 10000)) * time.Millisecond,
		FrameStride:      getEnvAsInt("FRAME_STRIDE", 5),
		WindowFraction:   getEnvAsFloat("CRASH_WINDOW_FRACTION", 0.7),
		WindowHalfWidth:  getEnvAsInt("CRASH_WINDOW_HALF_WIDTH", 10),
		RegionMargin:     getEnvAsInt("CRASH_REGION_MARGIN", 10),
		SyntheticSeed:    getEnvAsInt64("SYNTHETIC_SEED", 42),
		VideoDir:         getEnv("VIDEO_DIR", "."),
		OutputDir:        getEnv("OUTPUT_DIR", "."),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
