package scene

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

// observation is a pixel seen through a 3x4 projection matrix.
type observation struct {
	proj  *mat.Dense
	pixel marker.Pixel
}

// triangulate estimates the point seen by all observations with the linear
// DLT method: every observation contributes the rows v·P3 - P2 and
// P1 - u·P3, and the solution is the right singular vector of the smallest
// singular value. At least two observations are required.
func triangulate(obs []observation) (r3.Vector, bool) {
	if len(obs) < 2 {
		return r3.Vector{}, false
	}

	a := mat.NewDense(2*len(obs), 4, nil)
	for i, o := range obs {
		p1 := o.proj.RawRowView(0)
		p2 := o.proj.RawRowView(1)
		p3 := o.proj.RawRowView(2)
		for j := 0; j < 4; j++ {
			a.Set(2*i, j, o.pixel.Y*p3[j]-p2[j])
			a.Set(2*i+1, j, p1[j]-o.pixel.X*p3[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return r3.Vector{}, false
	}
	var v mat.Dense
	svd.VTo(&v)

	w := v.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return r3.Vector{}, false
	}
	return r3.Vector{
		X: v.At(0, 3) / w,
		Y: v.At(1, 3) / w,
		Z: v.At(2, 3) / w,
	}, true
}
