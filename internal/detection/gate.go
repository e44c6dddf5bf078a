package detection

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/parallel"
	"github.com/lucasb-eyer/go-colorful"
)

// SaturationGate keeps only achromatic pixels and returns the result as
// grayscale.
//
// Survey targets are printed black and white; vegetation and soil are not.
// Every pixel is converted to HSV on a 0-255 scale and kept only when
// V >= minValue and S <= maxSaturation. All other pixels are set to black
// before the grayscale conversion, so dark pixels of the target and masked
// background end up with the same value.
//
// The input image is never modified.
func SaturationGate(img image.Image, minValue, maxSaturation uint8) *image.Gray {
	rgba := clone.AsRGBA(img)
	bounds := rgba.Bounds()
	width := bounds.Dx()

	parallel.Line(bounds.Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+width*4]
			for x := 0; x < width; x++ {
				px := row[x*4 : x*4+4]
				if !achromatic(px[0], px[1], px[2], minValue, maxSaturation) {
					px[0], px[1], px[2] = 0, 0, 0
				}
			}
		}
	})

	return grayFromRGBA(effect.Grayscale(rgba))
}

// grayFromRGBA copies the red channel of a grayscale RGBA image.
func grayFromRGBA(src *image.RGBA) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	width := b.Dx()

	parallel.Line(b.Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			srow := src.Pix[y*src.Stride : y*src.Stride+width*4]
			drow := dst.Pix[y*dst.Stride : y*dst.Stride+width]
			for x := range drow {
				drow[x] = srow[x*4]
			}
		}
	})
	return dst
}

// achromatic reports whether an 8-bit RGB triple passes the HSV window.
func achromatic(r, g, b, minValue, maxSaturation uint8) bool {
	c := colorful.Color{
		R: float64(r) / 255.0,
		G: float64(g) / 255.0,
		B: float64(b) / 255.0,
	}
	_, s, v := c.Hsv()
	return math.Round(v*255) >= float64(minValue) && math.Round(s*255) <= float64(maxSaturation)
}
