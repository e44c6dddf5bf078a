package detection

import (
	"image"

	"github.com/disintegration/imaging"
)

// CropAround cuts a square window of half-size half centred on center out of
// gray. The window is clamped to the image bounds on every side, so windows
// near a border are smaller than 2*half.
//
// It returns the cropped pixels with a zero origin and the window rectangle in
// gray's coordinates. An empty window returns a nil image.
func CropAround(gray *image.Gray, center image.Point, half int) (*image.Gray, image.Rectangle) {
	rect := image.Rect(
		center.X-half,
		center.Y-half,
		center.X+half,
		center.Y+half,
	).Intersect(gray.Bounds())

	if rect.Empty() {
		return nil, rect
	}

	cropped := imaging.Crop(gray, rect)
	return nrgbaToGray(cropped), rect
}

// nrgbaToGray copies the red channel of an NRGBA image produced from
// grayscale input.
func nrgbaToGray(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		off := y * src.Stride
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[y*dst.Stride+x] = src.Pix[off+x*4]
		}
	}
	return dst
}
