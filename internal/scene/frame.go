package scene

import (
	"math"

	"github.com/golang/geo/r3"
)

// EarthRadius is the mean Earth radius in metres used for geographic frames.
const EarthRadius = 6367000.0

// Frame maps reference CRS coordinates to a local metric frame centred on
// Origin: X east, Y north, Z up.
//
// Geographic frames take X as longitude and Y as latitude in decimal degrees
// and use an equirectangular approximation, which is accurate to well below
// a centimetre over the extent of a survey flight. Other frames are assumed
// metric already and are only shifted.
type Frame struct {
	Geographic bool      `json:"geographic"`
	Origin     r3.Vector `json:"origin"`
}

// ToLocal converts a CRS point to local metres.
func (f Frame) ToLocal(p r3.Vector) r3.Vector {
	d := p.Sub(f.Origin)
	if !f.Geographic {
		return d
	}
	return r3.Vector{
		X: radians(d.X) * EarthRadius * math.Cos(radians(f.Origin.Y)),
		Y: radians(d.Y) * EarthRadius,
		Z: d.Z,
	}
}

// FromLocal converts local metres back to the CRS.
func (f Frame) FromLocal(l r3.Vector) r3.Vector {
	if !f.Geographic {
		return f.Origin.Add(l)
	}
	return f.Origin.Add(r3.Vector{
		X: degrees(l.X / (EarthRadius * math.Cos(radians(f.Origin.Y)))),
		Y: degrees(l.Y / EarthRadius),
		Z: l.Z,
	})
}

// Distance returns the metric distance between two CRS points.
func (f Frame) Distance(a, b r3.Vector) float64 {
	return f.ToLocal(a).Sub(f.ToLocal(b)).Norm()
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
