package detection

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/parallel"
)

// Binarize maps pixels strictly above threshold to white and the rest to
// black, so a threshold of 255 yields an all-black image. The result starts
// at the origin.
//
// The comparison is made on the gray level itself. bild's segment.Threshold
// truncates a float luma rank and turns values such as 151 into 150.
func Binarize(img image.Image, threshold uint8) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	src, isGray := img.(*image.Gray)

	parallel.Line(b.Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			row := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()]
			for x := range row {
				var v uint8
				if isGray {
					v = src.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				} else {
					v = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
				}
				if v > threshold {
					row[x] = 0xFF
				}
			}
		}
	})
	return dst
}

// MomentCentroid returns the centroid of the white pixels of a binary image
// from its raw moments: x = M10/M00, y = M01/M00. Coordinates are pixel
// indices relative to the image's top-left corner.
//
// ok is false when the image has no white pixel.
func MomentCentroid(bin *image.Gray) (x, y float64, ok bool) {
	b := bin.Bounds()
	var m00, m10, m01 float64
	for py := 0; py < b.Dy(); py++ {
		row := bin.Pix[py*bin.Stride : py*bin.Stride+b.Dx()]
		for px, v := range row {
			if v == 0 {
				continue
			}
			m00++
			m10 += float64(px)
			m01 += float64(py)
		}
	}
	if m00 == 0 {
		return 0, 0, false
	}
	return m10 / m00, m01 / m00, true
}
