// Package marker holds the data model shared by the detection, matching and
// validation stages: pixel coordinates, image descriptors, reference markers
// and their per-image projections.
//
// # Coordinate Systems
//
// Pixels use the usual image convention: (0,0) is the top-left corner, X grows
// rightward and Y grows downward. Values are float64 because detections are
// sub-pixel centroids.
//
// Reference locations and 3D candidates are expressed in the reference
// coordinate system (CRS) of the survey, as r3.Vector with X/Y the planar axes
// (easting/longitude, northing/latitude) and Z the elevation.
package marker

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
)

// ErrNoSurface is returned by projectors when a pixel ray does not hit the
// reconstructed surface. Callers treat it as a negative outcome.
var ErrNoSurface = errors.New("ray does not intersect the surface")

// Pixel is a position inside an image, in pixels.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SquaredDistance returns the squared Euclidean distance between two pixels.
func (p Pixel) SquaredDistance(q Pixel) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Distance returns the Euclidean distance between two pixels.
func (p Pixel) Distance(q Pixel) float64 {
	return math.Sqrt(p.SquaredDistance(q))
}

// Image describes one photograph of a batch. It is immutable once created;
// pixel data is obtained from the scene that owns the image.
type Image struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Path   string `json:"path,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Reference is a surveyed ground control point with a known location.
type Reference struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Location r3.Vector `json:"location"`
}

// Projection associates a marker with a pixel in one image. Pinned
// projections are trusted constraints for downstream optimization.
type Projection struct {
	ImageID string `json:"image_id"`
	Pixel   Pixel  `json:"pixel"`
	Pinned  bool   `json:"pinned"`
}

// Pin identifies a pinned (marker, image) projection.
type Pin struct {
	MarkerID string `json:"marker_id"`
	ImageID  string `json:"image_id"`
	Pixel    Pixel  `json:"pixel"`
}

// Flatten returns v with its elevation set to zero.
func Flatten(v r3.Vector) r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y}
}
