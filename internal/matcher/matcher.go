// Package matcher assigns detected marker pixels to known reference markers.
//
// A detection is unprojected onto the reconstructed surface and compared to
// every reference location on the horizontal plane. Elevation is ignored
// because surveyed heights and reconstructed heights disagree far more than
// planar positions do. The nearest marker wins when it lies inside the
// distance gate; the projection is then stored as pinned.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

var (
	// ErrNoProjector is returned when the matcher has no way to unproject pixels.
	ErrNoProjector = errors.New("matcher: no projector")
	// ErrNoStore is returned when the matcher has nowhere to record projections.
	ErrNoStore = errors.New("matcher: no projection store")
)

// Unprojector converts an image pixel to a point on the reconstructed surface.
// It returns marker.ErrNoSurface when the pixel ray misses the surface.
type Unprojector interface {
	Unproject(ctx context.Context, imageID string, px marker.Pixel) (r3.Vector, error)
}

// PointRecorder records debug points. Failures are logged, never fatal.
type PointRecorder interface {
	AddPoint(ctx context.Context, label string, p r3.Vector) error
}

// Config holds the matcher parameters.
type Config struct {
	// DistanceGate is the maximum planar distance, in reference CRS units,
	// between a detection and its marker. The comparison is strict.
	DistanceGate float64 `json:"distance_gate"`
}

// DefaultConfig returns a gate suited to decimal-degree reference
// coordinates (about 30 m).
func DefaultConfig() Config {
	return Config{DistanceGate: 0.0003}
}

// Validate reports an invalid gate.
func (c Config) Validate() error {
	if c.DistanceGate <= 0 {
		return fmt.Errorf("distance_gate must be positive, got %v", c.DistanceGate)
	}
	return nil
}

// Match is the outcome of matching one detection.
type Match struct {
	// Surface reports whether the pixel could be unprojected; Candidate is
	// only meaningful when it is true.
	Surface   bool      `json:"surface"`
	Candidate r3.Vector `json:"candidate"`

	// Nearest marker and its planar distance, when any reference exists.
	MarkerID string  `json:"marker_id,omitempty"`
	Distance float64 `json:"distance"`

	// Accepted is true when a pinned projection was stored for MarkerID.
	Accepted bool `json:"accepted"`
}

// Matcher assigns detections to reference markers.
type Matcher struct {
	cfg         Config
	projector   Unprojector
	store       marker.ProjectionStore
	annotations PointRecorder
}

// New creates a matcher. annotations may be nil.
func New(cfg Config, projector Unprojector, store marker.ProjectionStore, annotations PointRecorder) (*Matcher, error) {
	if projector == nil {
		return nil, ErrNoProjector
	}
	if store == nil {
		return nil, ErrNoStore
	}
	return &Matcher{
		cfg:         cfg,
		projector:   projector,
		store:       store,
		annotations: annotations,
	}, nil
}

// Match unprojects px detected in img and pins it to the nearest reference
// marker inside the distance gate.
//
// A pixel that misses the surface, an empty reference list and a nearest
// marker outside the gate are all negative outcomes, not errors. Other
// unprojection failures are returned.
func (m *Matcher) Match(ctx context.Context, img marker.Image, px marker.Pixel, refs []marker.Reference) (*Match, error) {
	result := &Match{}

	candidate, err := m.projector.Unproject(ctx, img.ID, px)
	if errors.Is(err, marker.ErrNoSurface) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unproject %s: %w", img.ID, err)
	}
	result.Surface = true
	result.Candidate = candidate

	if m.annotations != nil {
		if err := m.annotations.AddPoint(ctx, img.Label, candidate); err != nil {
			log.Printf("Warning: failed to annotate detection in %s: %v", img.ID, err)
		}
	}

	if len(refs) == 0 {
		return result, nil
	}

	best := -1
	bestDistance := 0.0
	for i, ref := range refs {
		d := PlanarDistance(candidate, ref.Location)
		if best < 0 || d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	result.MarkerID = refs[best].ID
	result.Distance = bestDistance

	if bestDistance < m.cfg.DistanceGate {
		m.store.Set(refs[best].ID, marker.Projection{
			ImageID: img.ID,
			Pixel:   px,
			Pinned:  true,
		})
		result.Accepted = true
	}
	return result, nil
}

// PlanarDistance returns the Euclidean distance between a and b with both
// elevations set to zero.
func PlanarDistance(a, b r3.Vector) float64 {
	fa := marker.Flatten(a)
	fb := marker.Flatten(b)
	return floats.Distance(
		[]float64{fa.X, fa.Y, fa.Z},
		[]float64{fb.X, fb.Y, fb.Z},
		2,
	)
}
