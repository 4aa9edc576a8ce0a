package detect

import (
	"math/rand"

	"crashwatch/internal/pipeline"
)

const (
	minSyntheticBoxes = 2
	maxSyntheticBoxes = 5
	minBoxSide        = 50
	maxBoxSide        = 100
)

// Synthetic generates deterministic pseudo-random vehicle detections. It is a
// stand-in for a real detector so inference and orchestration can run and be
// tested offline, not a detector: boxes are drawn uniformly inside frame
// bounds with confidence in [0.70, 0.95].
//
// Output is reproducible: the generator for a frame is seeded with the run
// seed plus the frame index, so replaying a stream yields identical
// detections.
type Synthetic struct {
	seed int64
}

// NewSynthetic creates a synthetic generator with the given run seed
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{seed: seed}
}

// Seed returns the run seed
func (s *Synthetic) Seed() int64 { return s.seed }

// Generate returns 2-5 vehicle detections inside the frame bounds
func (s *Synthetic) Generate(frame *pipeline.FrameData) []pipeline.Detection {
	bounds := frame.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(s.seed + int64(frame.Index)))
	count := minSyntheticBoxes + rng.Intn(maxSyntheticBoxes-minSyntheticBoxes+1)

	detections := make([]pipeline.Detection, 0, count)
	for i := 0; i < count; i++ {
		side := minBoxSide
		if side > width {
			side = width
		}
		vside := minBoxSide
		if vside > height {
			vside = height
		}

		x1 := bounds.Min.X + intn(rng, width-side)
		y1 := bounds.Min.Y + intn(rng, height-vside)
		x2 := x1 + side + intn(rng, min(maxBoxSide, width)-side)
		y2 := y1 + vside + intn(rng, min(maxBoxSide, height)-vside)
		if x2 > bounds.Max.X {
			x2 = bounds.Max.X
		}
		if y2 > bounds.Max.Y {
			y2 = bounds.Max.Y
		}

		detections = append(detections, pipeline.Detection{
			Class:      pipeline.VehicleClasses[rng.Intn(len(pipeline.VehicleClasses))],
			Confidence: 0.70 + rng.Float64()*0.25,
			Box:        pipeline.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
		})
	}
	return detections
}

// intn tolerates a non-positive bound, which rand.Intn does not
func intn(rng *rand.Rand, n int) int {
	if n <= 0 {
		return 0
	}
	return rng.Intn(n)
}
