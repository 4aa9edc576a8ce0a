// Package annotate renders detection boxes and crash overlays onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"crashwatch/internal/pipeline"
)

const (
	boxThickness   = 2
	crashThickness = 3
	labelOffset    = 15
	marksPerUnit   = 20 // impact marks scale with crash confidence
)

var (
	colorCar        = color.RGBA{R: 255, G: 255, B: 0, A: 255}   // yellow
	colorTruck      = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // orange
	colorBus        = color.RGBA{R: 0, G: 255, B: 255, A: 255}   // cyan
	colorMotorcycle = color.RGBA{R: 50, G: 205, B: 50, A: 255}   // lime
	colorCrash      = color.RGBA{R: 220, G: 20, B: 20, A: 255}   // red
	colorHeader     = color.RGBA{R: 255, G: 255, B: 255, A: 255} // white
)

func classColor(class pipeline.VehicleClass) color.RGBA {
	switch class {
	case pipeline.ClassTruck:
		return colorTruck
	case pipeline.ClassBus:
		return colorBus
	case pipeline.ClassMotorcycle:
		return colorMotorcycle
	default:
		return colorCar
	}
}

// Annotator draws detections, labels and crash markers onto frames. Drawing
// is purely cosmetic: it copies the frame buffer and never feeds back into
// any numeric result.
type Annotator struct{}

// New creates an annotator
func New() *Annotator {
	return &Annotator{}
}

// Annotate returns a new frame buffer with one rectangle and label per
// detection, a frame position header, and, for a positive crash candidate, a
// red region overlay with confidence-scaled impact marks. Inputs are not
// mutated.
func (a *Annotator) Annotate(frame *pipeline.FrameData, detections []pipeline.Detection, crash pipeline.CrashCandidate, totalFrames int) *image.RGBA {
	bounds := frame.Bounds()
	dst := image.NewRGBA(bounds)
	if frame.Image != nil {
		draw.Draw(dst, bounds, frame.Image, bounds.Min, draw.Src)
	}

	for _, det := range detections {
		c := classColor(det.Class)
		drawRect(dst, det.Box.Rect(), c, boxThickness)
		drawLabel(dst, det.Box.X1, det.Box.Y1-labelOffset/3,
			fmt.Sprintf("%s: %.2f", det.Class, det.Confidence), c)
	}

	if crash.IsCrash && crash.Region != nil {
		region := crash.Region.Rect()
		drawRect(dst, region, colorCrash, crashThickness)
		drawLabel(dst, region.Min.X, region.Min.Y-labelOffset,
			fmt.Sprintf("CRASH DETECTED: %.2f", crash.Confidence), colorCrash)
		drawImpactMarks(dst, region, crash)
	}

	drawLabel(dst, bounds.Min.X+10, bounds.Min.Y+14,
		fmt.Sprintf("Frame: %d/%d", frame.Index+1, totalFrames), colorHeader)

	return dst
}

// drawImpactMarks scatters small filled squares inside the crash region. The
// generator is seeded from the candidate's frame index so output frames are
// reproducible.
func drawImpactMarks(dst *image.RGBA, region image.Rectangle, crash pipeline.CrashCandidate) {
	if region.Dx() <= 0 || region.Dy() <= 0 {
		return
	}
	rng := rand.New(rand.NewSource(int64(crash.FrameIndex)))
	count := int(marksPerUnit * crash.Confidence)
	for i := 0; i < count; i++ {
		x := region.Min.X + rng.Intn(region.Dx())
		y := region.Min.Y + rng.Intn(region.Dy())
		size := 2 + rng.Intn(6)
		fillRect(dst, image.Rect(x, y, x+size, y+size), colorCrash)
	}
}

func drawRect(dst *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func drawLabel(dst *image.RGBA, x, y int, text string, c color.RGBA) {
	// Keep the baseline inside the frame when the box touches the top edge
	minY := dst.Bounds().Min.Y + basicfont.Face7x13.Ascent
	if y < minY {
		y = minY
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

var _ pipeline.Annotator = (*Annotator)(nil)
