// Package scene is a self-contained reconstruction host: calibrated pinhole
// cameras over a flat ground plane, a set of surveyed markers and the
// mutable projection and annotation state a detection batch works on.
//
// It implements every capability the pipeline needs, so batches can run
// without an external photogrammetry engine: from a scene file on the command
// line, from the MCP server, or in tests with synthetic images.
//
// # Geometry
//
// All computations run in a local metric frame (see Frame). Unproject
// intersects the viewing ray with the ground plane at GroundElevation.
// Marker estimates are triangulated from pinned projections seen by at least
// two cameras and fall back to the surveyed location otherwise.
package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/ironsheep/gcp-tools-mcp/internal/imaging"
	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

var (
	// ErrUnknownImage is returned for image IDs that are not part of the scene.
	ErrUnknownImage = errors.New("unknown image")
	// ErrNoImageData is returned when an image has neither pixels nor a path.
	ErrNoImageData = errors.New("no image data")
	// ErrNoLayer is returned by AddPoint before EnsureLayer was called.
	ErrNoLayer = errors.New("no annotation layer")
)

// File is the on-disk scene description.
type File struct {
	Frame           Frame              `json:"frame"`
	GroundElevation float64            `json:"ground_elevation"`
	Cameras         []CameraSpec       `json:"cameras"`
	Markers         []marker.Reference `json:"markers"`

	// Projections recorded by earlier runs, keyed by marker ID.
	Projections map[string][]marker.Projection `json:"projections,omitempty"`
}

// Annotation is a debug point added to a layer.
type Annotation struct {
	Label string    `json:"label"`
	Point r3.Vector `json:"point"`
}

// Option configures a Scene.
type Option func(*Scene)

// WithImageCache makes the scene load image files through cache.
func WithImageCache(cache *imaging.ImageCache) Option {
	return func(s *Scene) {
		s.cache = cache
	}
}

// WithImage provides the pixels of an image directly, bypassing its path.
func WithImage(imageID string, img image.Image) Option {
	return func(s *Scene) {
		s.pixels[imageID] = img
	}
}

// WithStore replaces the projection store, for example to resume from
// projections recorded earlier.
func WithStore(store marker.ProjectionStore) Option {
	return func(s *Scene) {
		s.store = store
	}
}

// Scene holds cameras, markers and the mutable batch state. It is safe for
// concurrent use.
type Scene struct {
	frame   Frame
	ground  float64 // local
	cameras map[string]*camera
	images  []marker.Image
	markers []marker.Reference
	pixels  map[string]image.Image
	cache   *imaging.ImageCache
	store   marker.ProjectionStore

	mu                  sync.RWMutex
	estimates           map[string]r3.Vector
	layers              map[string][]Annotation
	activeLayer         string
	transformUpdates    int
	cameraOptimizations int
}

// Load reads a scene file. Relative image paths are resolved against the
// directory of the file.
func Load(path string, opts ...Option) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scene: %w", err)
	}

	dir := filepath.Dir(path)
	for i := range f.Cameras {
		p := f.Cameras[i].Path
		if p != "" && !filepath.IsAbs(p) {
			f.Cameras[i].Path = filepath.Join(dir, p)
		}
	}

	return New(f, opts...)
}

// New builds a scene from its description.
func New(f File, opts ...Option) (*Scene, error) {
	s := &Scene{
		frame:     f.Frame,
		ground:    f.GroundElevation - f.Frame.Origin.Z,
		cameras:   make(map[string]*camera, len(f.Cameras)),
		pixels:    make(map[string]image.Image),
		estimates: make(map[string]r3.Vector, len(f.Markers)),
		layers:    make(map[string][]Annotation),
	}

	for _, spec := range f.Cameras {
		if _, dup := s.cameras[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate camera id %q", spec.ID)
		}
		cam, err := newCamera(spec, f.Frame)
		if err != nil {
			return nil, err
		}
		s.cameras[spec.ID] = cam
		s.images = append(s.images, marker.Image{
			ID:     spec.ID,
			Label:  spec.Label,
			Path:   spec.Path,
			Width:  spec.Width,
			Height: spec.Height,
		})
	}

	seen := make(map[string]bool, len(f.Markers))
	for _, m := range f.Markers {
		if m.ID == "" {
			return nil, fmt.Errorf("marker without id")
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate marker id %q", m.ID)
		}
		seen[m.ID] = true
		s.markers = append(s.markers, m)
		s.estimates[m.ID] = m.Location
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = marker.NewMemoryStore()
	}
	if s.cache == nil {
		s.cache = imaging.NewImageCache()
	}

	for id, projections := range f.Projections {
		if !seen[id] {
			return nil, fmt.Errorf("projections for unknown marker %q", id)
		}
		for _, p := range projections {
			if _, ok := s.cameras[p.ImageID]; !ok {
				return nil, fmt.Errorf("marker %s: %w: %s", id, ErrUnknownImage, p.ImageID)
			}
			s.store.Set(id, p)
		}
	}
	return s, nil
}

// Images returns the image descriptors in scene order.
func (s *Scene) Images(ctx context.Context) ([]marker.Image, error) {
	return append([]marker.Image(nil), s.images...), nil
}

// LoadImage returns the pixels of an image.
func (s *Scene) LoadImage(ctx context.Context, imageID string) (image.Image, error) {
	if img, ok := s.pixels[imageID]; ok {
		return img, nil
	}
	cam, ok := s.cameras[imageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	if cam.spec.Path == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoImageData, imageID)
	}
	return s.cache.Load(cam.spec.Path)
}

// Markers returns the reference markers in scene order.
func (s *Scene) Markers(ctx context.Context) ([]marker.Reference, error) {
	return append([]marker.Reference(nil), s.markers...), nil
}

// MarkerEstimates returns the current 3D estimate of every marker in CRS
// coordinates.
func (s *Scene) MarkerEstimates(ctx context.Context) (map[string]r3.Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]r3.Vector, len(s.estimates))
	for id, p := range s.estimates {
		out[id] = p
	}
	return out, nil
}

// Projections returns the projection store.
func (s *Scene) Projections() marker.ProjectionStore {
	return s.store
}

// Unproject intersects the viewing ray through px with the ground plane and
// returns the point in CRS coordinates.
func (s *Scene) Unproject(ctx context.Context, imageID string, px marker.Pixel) (r3.Vector, error) {
	cam, ok := s.cameras[imageID]
	if !ok {
		return r3.Vector{}, fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	local, err := cam.intersectPlane(px, s.ground)
	if err != nil {
		return r3.Vector{}, err
	}
	return s.frame.FromLocal(local), nil
}

// Project maps a CRS point into an image.
func (s *Scene) Project(ctx context.Context, imageID string, p r3.Vector) (marker.Pixel, error) {
	cam, ok := s.cameras[imageID]
	if !ok {
		return marker.Pixel{}, fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	return cam.project(s.frame.ToLocal(p))
}

// LocalDistance returns the distance between two CRS points in metres.
func (s *Scene) LocalDistance(a, b r3.Vector) float64 {
	return s.frame.Distance(a, b)
}

// EnsureLayer creates the named annotation layer if needed and makes it the
// target of AddPoint. Existing points are kept.
func (s *Scene) EnsureLayer(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.layers[name]; !ok {
		s.layers[name] = []Annotation{}
	}
	s.activeLayer = name
	return nil
}

// AddPoint adds a point to the active annotation layer.
func (s *Scene) AddPoint(ctx context.Context, label string, p r3.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeLayer == "" {
		return ErrNoLayer
	}
	s.layers[s.activeLayer] = append(s.layers[s.activeLayer], Annotation{Label: label, Point: p})
	return nil
}

// Layer returns a copy of the points of an annotation layer.
func (s *Scene) Layer(name string) []Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Annotation(nil), s.layers[name]...)
}

// UpdateTransform re-estimates every marker from its pinned projections.
// Markers pinned in fewer than two images keep their surveyed location.
func (s *Scene) UpdateTransform(ctx context.Context) error {
	estimates := make(map[string]r3.Vector, len(s.markers))
	for _, m := range s.markers {
		if err := ctx.Err(); err != nil {
			return err
		}

		var obs []observation
		for _, p := range s.store.Entries(m.ID) {
			cam, ok := s.cameras[p.ImageID]
			if !p.Pinned || !ok {
				continue
			}
			obs = append(obs, observation{proj: cam.proj, pixel: p.Pixel})
		}

		local, ok := triangulate(obs)
		if !ok {
			estimates[m.ID] = m.Location
			continue
		}
		estimates[m.ID] = s.frame.FromLocal(local)
	}

	s.mu.Lock()
	s.estimates = estimates
	s.transformUpdates++
	s.mu.Unlock()
	return nil
}

// OptimizeCameras is part of the refinement step. Scene cameras are fixed
// calibrations, so the call is only counted.
func (s *Scene) OptimizeCameras(ctx context.Context) error {
	s.mu.Lock()
	s.cameraOptimizations++
	s.mu.Unlock()
	log.Printf("scene: cameras are fixed, skipping optimization")
	return nil
}

// RefinementCounts reports how often UpdateTransform and OptimizeCameras ran.
func (s *Scene) RefinementCounts() (transformUpdates, cameraOptimizations int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transformUpdates, s.cameraOptimizations
}
