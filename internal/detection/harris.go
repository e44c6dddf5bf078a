package detection

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// HarrisDetector finds corners with the Harris response computed over an
// image pyramid.
//
// # Algorithm
//
// For every pyramid level:
//
//  1. Normalize intensities to 0-1.
//
//  2. Gradients: Sobel operators for X and Y, borders replicated.
//
//  3. Structure tensor: the products Ix², Iy² and IxIy are averaged over a
//     5x5 Gaussian window (sigma ≈ 1.4).
//
//  4. Response: R = det(M) - k·trace(M)². Corners give large positive values,
//     edges negative values and flat regions zero.
//
//  5. Non-maximum suppression: a pixel survives when no neighbour within
//     SuppressRadius has a larger response. Equal responses keep the pixel
//     first in scan order.
//
// Keypoints of all levels are mapped back to full resolution and ranked by
// response. The result is deterministic for identical input.
type HarrisDetector struct {
	cfg KeypointConfig
}

// NewHarrisDetector creates a Harris detector with the given configuration.
func NewHarrisDetector(cfg KeypointConfig) *HarrisDetector {
	return &HarrisDetector{cfg: cfg}
}

// Detect returns up to limit keypoints, strongest first.
func (d *HarrisDetector) Detect(gray *image.Gray, limit int) []Keypoint {
	if gray == nil || limit <= 0 {
		return nil
	}

	levels := d.cfg.Levels
	if levels < 1 {
		levels = 1
	}
	scaleFactor := d.cfg.ScaleFactor
	if scaleFactor <= 1 {
		scaleFactor = 1.2
	}

	bounds := gray.Bounds()
	keypoints := make([]Keypoint, 0)

	for level := 0; level < levels; level++ {
		scale := math.Pow(scaleFactor, float64(level))

		var lum *plane
		if level == 0 {
			lum = grayPlane(gray)
		} else {
			w := int(math.Round(float64(bounds.Dx()) / scale))
			h := int(math.Round(float64(bounds.Dy()) / scale))
			if w <= 2*d.cfg.EdgeMargin || h <= 2*d.cfg.EdgeMargin {
				break
			}
			lum = nrgbaPlane(imaging.Resize(gray, w, h, imaging.Linear))
		}
		if lum.w <= 2*d.cfg.EdgeMargin || lum.h <= 2*d.cfg.EdgeMargin {
			break
		}

		response := harrisResponse(lum, float32(d.cfg.HarrisK))
		for _, p := range localMaxima(response, d.cfg.EdgeMargin, d.cfg.SuppressRadius, float32(d.cfg.MinResponse)) {
			keypoints = append(keypoints, Keypoint{
				X:        (float64(p.x)+0.5)*scale - 0.5 + float64(bounds.Min.X),
				Y:        (float64(p.y)+0.5)*scale - 0.5 + float64(bounds.Min.Y),
				Response: float64(p.r),
				Level:    level,
			})
		}
	}

	sort.SliceStable(keypoints, func(i, j int) bool {
		return keypoints[i].Response > keypoints[j].Response
	})

	if len(keypoints) > limit {
		keypoints = keypoints[:limit]
	}
	return keypoints
}

// plane is a dense single-channel float image.
type plane struct {
	w, h int
	v    []float32
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, v: make([]float32, w*h)}
}

func (p *plane) at(x, y int) float32 {
	return p.v[y*p.w+x]
}

func grayPlane(g *image.Gray) *plane {
	b := g.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+p.w]
		for x, v := range row {
			p.v[y*p.w+x] = float32(v) / 255
		}
	}
	return p
}

func nrgbaPlane(img *image.NRGBA) *plane {
	b := img.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := 0; y < p.h; y++ {
		off := y * img.Stride
		for x := 0; x < p.w; x++ {
			p.v[y*p.w+x] = float32(img.Pix[off+x*4]) / 255
		}
	}
	return p
}

var (
	sobelX = [3][3]float32{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY = [3][3]float32{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
	// 5x5 Gaussian, sum 273.
	gaussKernel = [5][5]float32{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
)

const gaussKernelSum = 273

// harrisResponse computes the Harris corner response of every pixel.
func harrisResponse(lum *plane, k float32) *plane {
	w, h := lum.w, lum.h
	ixx := newPlane(w, h)
	iyy := newPlane(w, h)
	ixy := newPlane(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var gx, gy float32
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := lum.at(clamp(x+kx, 0, w-1), clamp(y+ky, 0, h-1))
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			i := y*w + x
			ixx.v[i] = gx * gx
			iyy.v[i] = gy * gy
			ixy.v[i] = gx * gy
		}
	}

	response := newPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sxx, syy, sxy float32
			for ky := -2; ky <= 2; ky++ {
				py := clamp(y+ky, 0, h-1)
				for kx := -2; kx <= 2; kx++ {
					px := clamp(x+kx, 0, w-1)
					weight := gaussKernel[ky+2][kx+2]
					i := py*w + px
					sxx += ixx.v[i] * weight
					syy += iyy.v[i] * weight
					sxy += ixy.v[i] * weight
				}
			}
			sxx /= gaussKernelSum
			syy /= gaussKernelSum
			sxy /= gaussKernelSum

			trace := sxx + syy
			response.v[y*w+x] = sxx*syy - sxy*sxy - k*trace*trace
		}
	}
	return response
}

type peak struct {
	x, y int
	r    float32
}

// localMaxima returns responses above minResponse that are local maxima
// within radius, skipping a border of margin pixels. Peaks are in scan order.
func localMaxima(resp *plane, margin, radius int, minResponse float32) []peak {
	if margin < 0 {
		margin = 0
	}
	peaks := make([]peak, 0)
	for y := margin; y < resp.h-margin; y++ {
		for x := margin; x < resp.w-margin; x++ {
			r := resp.at(x, y)
			if r <= minResponse {
				continue
			}
			if isLocalMax(resp, x, y, radius, r) {
				peaks = append(peaks, peak{x: x, y: y, r: r})
			}
		}
	}
	return peaks
}

func isLocalMax(resp *plane, x, y, radius int, r float32) bool {
	for dy := -radius; dy <= radius; dy++ {
		ny := y + dy
		if ny < 0 || ny >= resp.h {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			nx := x + dx
			if (dx == 0 && dy == 0) || nx < 0 || nx >= resp.w {
				continue
			}
			n := resp.at(nx, ny)
			if n > r {
				return false
			}
			// Ties go to the neighbour visited first in scan order.
			if n == r && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
