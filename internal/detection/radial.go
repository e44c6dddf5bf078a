package detection

import (
	"image"
	"math"
)

// RadialConfig tunes the radial symmetry check.
type RadialConfig struct {
	// Radius is the sampling distance from the centroid, in pixels.
	Radius float64 `json:"radius"`

	// Step is the angular step of the sweep, in radians.
	Step float64 `json:"step"`

	// MinArcDegrees is the minimum span of the matching arc.
	MinArcDegrees float64 `json:"min_arc_degrees"`
}

// DefaultRadialConfig returns the radial check defaults.
func DefaultRadialConfig() RadialConfig {
	return RadialConfig{
		Radius:        5,
		Step:          0.1,
		MinArcDegrees: 30,
	}
}

// VerifyRadial checks that the binary image looks like a two-quadrant target
// around (cx, cy).
//
// The sweep visits θ = -π + i·Step while θ < π and samples the pixel at
// (round(cx + r·sin θ), round(cy + r·cos θ)). An angle matches when the sample
// and the one opposite to it are black while both samples at ±90° are not.
// Samples outside the image never match.
//
// Only the first contiguous run of matching angles counts: the sweep stops as
// soon as it ends. Its span is the first failing angle minus the first
// matching one; a run reaching the end of the sweep is closed one step after
// its last angle. The target is accepted when the span reaches MinArcDegrees.
func VerifyRadial(bin *image.Gray, cx, cy float64, cfg RadialConfig) (arcDegrees float64, ok bool) {
	if cfg.Step <= 0 {
		return 0, false
	}

	var (
		inRun       bool
		closed      bool
		start, last float64
		span        float64
	)

	for i := 0; ; i++ {
		theta := -math.Pi + float64(i)*cfg.Step
		if theta >= math.Pi {
			break
		}

		if radialMatch(bin, cx, cy, cfg.Radius, theta) {
			if !inRun {
				inRun = true
				start = theta
			}
			last = theta
			continue
		}

		if inRun {
			span = theta - start
			closed = true
			break
		}
	}

	if inRun && !closed {
		span = last + cfg.Step - start
	}

	arcDegrees = span * 180 / math.Pi
	return arcDegrees, inRun && arcDegrees >= cfg.MinArcDegrees
}

func radialMatch(bin *image.Gray, cx, cy, r, theta float64) bool {
	sample, inside := radialSample(bin, cx, cy, r, theta)
	if !inside || sample != 0 {
		return false
	}
	opposite, inside := radialSample(bin, cx, cy, r, theta+math.Pi)
	if !inside || opposite != 0 {
		return false
	}
	left, inside := radialSample(bin, cx, cy, r, theta-math.Pi/2)
	if !inside || left == 0 {
		return false
	}
	right, inside := radialSample(bin, cx, cy, r, theta+math.Pi/2)
	if !inside || right == 0 {
		return false
	}
	return true
}

// radialSample returns the value at radius r and angle theta from the
// centre, relative to the image's top-left corner.
func radialSample(bin *image.Gray, cx, cy, r, theta float64) (uint8, bool) {
	b := bin.Bounds()
	x := int(math.Round(cx+r*math.Sin(theta))) + b.Min.X
	y := int(math.Round(cy+r*math.Cos(theta))) + b.Min.Y
	if !(image.Point{X: x, Y: y}).In(b) {
		return 0, false
	}
	return bin.GrayAt(x, y).Y, true
}
