package pipeline

import (
	"context"
	"image"

	"github.com/golang/geo/r3"

	"github.com/ironsheep/gcp-tools-mcp/internal/detection"
	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

// ErrNoSurface is returned by a Projector when a pixel ray misses the
// reconstructed surface.
var ErrNoSurface = marker.ErrNoSurface

// Catalog enumerates the batch content.
type Catalog interface {
	Images(ctx context.Context) ([]marker.Image, error)
	LoadImage(ctx context.Context, imageID string) (image.Image, error)
	Markers(ctx context.Context) ([]marker.Reference, error)
	// MarkerEstimates returns the current best 3D position of each marker,
	// keyed by marker ID. Markers without an estimate are omitted.
	MarkerEstimates(ctx context.Context) (map[string]r3.Vector, error)
}

// Projector converts between image pixels and CRS points through the
// reconstructed camera models.
type Projector interface {
	Unproject(ctx context.Context, imageID string, px marker.Pixel) (r3.Vector, error)
	Project(ctx context.Context, imageID string, p r3.Vector) (marker.Pixel, error)
}

// Annotations is the debug shape layer of the host.
type Annotations interface {
	EnsureLayer(ctx context.Context, name string) error
	AddPoint(ctx context.Context, label string, p r3.Vector) error
}

// Refiner updates the reconstruction after projections changed.
type Refiner interface {
	UpdateTransform(ctx context.Context) error
	OptimizeCameras(ctx context.Context) error
}

// Scene is the full capability set a batch runs against.
type Scene interface {
	Catalog
	Projector
	Annotations
	Refiner
	Projections() marker.ProjectionStore
}

// Metric is implemented by scenes that can measure CRS distances in metres.
// It enables the reference error of the summary.
type Metric interface {
	LocalDistance(a, b r3.Vector) float64
}

// Detector finds the marker pixel of one image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*detection.Result, error)
}
