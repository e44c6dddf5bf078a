package scene

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

// ErrBehindCamera is returned when a point cannot be seen by a camera.
var ErrBehindCamera = errors.New("point behind camera")

// CameraSpec describes a calibrated, oriented pinhole camera in a scene file.
type CameraSpec struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Path   string `json:"path,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// Intrinsics in pixels.
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`

	// Rotation is the row-major world-to-camera rotation in the local frame.
	// The camera looks along its +Z axis with +Y pointing down the image.
	Rotation [9]float64 `json:"rotation"`

	// Center is the projection centre in CRS coordinates.
	Center r3.Vector `json:"center"`
}

// camera is a CameraSpec prepared for projection in the local frame.
type camera struct {
	spec   CameraSpec
	k      *mat.Dense
	r      *mat.Dense
	center r3.Vector // local
	proj   *mat.Dense
}

func newCamera(spec CameraSpec, frame Frame) (*camera, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("camera without id")
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("camera %s: invalid size %dx%d", spec.ID, spec.Width, spec.Height)
	}
	if spec.Fx <= 0 || spec.Fy <= 0 {
		return nil, fmt.Errorf("camera %s: focal lengths must be positive", spec.ID)
	}

	r := mat.NewDense(3, 3, spec.Rotation[:])
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	identity := mat.NewDiagDense(3, []float64{1, 1, 1})
	if !mat.EqualApprox(&rtr, identity, 1e-6) || mat.Det(r) < 0 {
		return nil, fmt.Errorf("camera %s: rotation is not a proper rotation matrix", spec.ID)
	}

	k := mat.NewDense(3, 3, []float64{
		spec.Fx, 0, spec.Cx,
		0, spec.Fy, spec.Cy,
		0, 0, 1,
	})

	c := &camera{
		spec:   spec,
		k:      k,
		r:      r,
		center: frame.ToLocal(spec.Center),
	}
	c.proj = c.projectionMatrix()
	return c, nil
}

// projectionMatrix returns P = K·[R | -R·C].
func (c *camera) projectionMatrix() *mat.Dense {
	var t mat.VecDense
	t.MulVec(c.r, mat.NewVecDense(3, []float64{c.center.X, c.center.Y, c.center.Z}))
	t.ScaleVec(-1, &t)

	extrinsics := mat.NewDense(3, 4, nil)
	extrinsics.Slice(0, 3, 0, 3).(*mat.Dense).Copy(c.r)
	extrinsics.SetCol(3, t.RawVector().Data)

	var p mat.Dense
	p.Mul(c.k, extrinsics)
	return &p
}

// project maps a local point to a pixel.
func (c *camera) project(local r3.Vector) (marker.Pixel, error) {
	var h mat.VecDense
	h.MulVec(c.proj, mat.NewVecDense(4, []float64{local.X, local.Y, local.Z, 1}))

	w := h.AtVec(2)
	if w <= 0 {
		return marker.Pixel{}, ErrBehindCamera
	}
	return marker.Pixel{X: h.AtVec(0) / w, Y: h.AtVec(1) / w}, nil
}

// ray returns the local direction of the viewing ray through px.
func (c *camera) ray(px marker.Pixel) r3.Vector {
	normalized := mat.NewVecDense(3, []float64{
		(px.X - c.spec.Cx) / c.spec.Fx,
		(px.Y - c.spec.Cy) / c.spec.Fy,
		1,
	})
	var d mat.VecDense
	d.MulVec(c.r.T(), normalized)
	return r3.Vector{X: d.AtVec(0), Y: d.AtVec(1), Z: d.AtVec(2)}
}

// intersectPlane returns where the ray through px meets the horizontal
// plane z = height (local). Rays parallel to the plane or pointing away from
// it return marker.ErrNoSurface.
func (c *camera) intersectPlane(px marker.Pixel, height float64) (r3.Vector, error) {
	d := c.ray(px)
	if d.Z == 0 {
		return r3.Vector{}, marker.ErrNoSurface
	}
	t := (height - c.center.Z) / d.Z
	if t <= 0 {
		return r3.Vector{}, marker.ErrNoSurface
	}
	return c.center.Add(d.Mul(t)), nil
}

// NadirCamera returns a camera looking straight down from center, with image
// X pointing east and image Y pointing south. The principal point is the
// image centre.
func NadirCamera(id, label string, width, height int, focal float64, center r3.Vector) CameraSpec {
	return CameraSpec{
		ID:     id,
		Label:  label,
		Width:  width,
		Height: height,
		Fx:     focal,
		Fy:     focal,
		Cx:     float64(width) / 2,
		Cy:     float64(height) / 2,
		Rotation: [9]float64{
			1, 0, 0,
			0, -1, 0,
			0, 0, -1,
		},
		Center: center,
	}
}
