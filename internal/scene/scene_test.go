package scene

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

// origin of the test survey: lon, lat, elevation.
var origin = r3.Vector{X: 9.2193, Y: 48.7162, Z: 364}

func geoFrame() Frame {
	return Frame{Geographic: true, Origin: origin}
}

// createTestScene returns a geographic scene with two nadir cameras 50 m
// above the ground and one marker at the origin.
func createTestScene(t *testing.T, opts ...Option) *Scene {
	t.Helper()
	east := geoFrame().FromLocal(r3.Vector{X: 10, Z: 50})
	f := File{
		Frame:           geoFrame(),
		GroundElevation: origin.Z,
		Cameras: []CameraSpec{
			NadirCamera("cam1", "DJI_0001.JPG", 1024, 768, 1000, r3.Vector{X: origin.X, Y: origin.Y, Z: origin.Z + 50}),
			NadirCamera("cam2", "DJI_0002.JPG", 1024, 768, 1000, east),
		},
		Markers: []marker.Reference{
			{ID: "gcp1", Label: "GCP 1", Location: origin},
		},
	}
	s, err := New(f, opts...)
	require.NoError(t, err)
	return s
}

func TestFrame_RoundTrip(t *testing.T) {
	frames := []Frame{
		geoFrame(),
		{Geographic: false, Origin: r3.Vector{X: 500000, Y: 5400000, Z: 300}},
	}
	for _, f := range frames {
		p := f.Origin.Add(r3.Vector{X: 0.0012, Y: -0.0007, Z: 12.5})
		back := f.FromLocal(f.ToLocal(p))
		if back.Sub(p).Norm() > 1e-9 {
			t.Errorf("geographic=%v: round trip %v -> %v", f.Geographic, p, back)
		}
	}
}

func TestFrame_Distance(t *testing.T) {
	f := geoFrame()
	north := origin.Add(r3.Vector{Y: 1e-4})

	want := 1e-4 * math.Pi / 180 * EarthRadius
	if got := f.Distance(origin, north); math.Abs(got-want) > 1e-9 {
		t.Errorf("Distance: got %v, want %v", got, want)
	}

	plain := Frame{}
	if got := plain.Distance(r3.Vector{}, r3.Vector{X: 3, Y: 4}); got != 5 {
		t.Errorf("plain Distance: got %v, want 5", got)
	}
}

func TestProject_Nadir(t *testing.T) {
	s := createTestScene(t)
	ctx := context.Background()

	px, err := s.Project(ctx, "cam1", origin)
	require.NoError(t, err)
	require.InDelta(t, 512, px.X, 1e-6)
	require.InDelta(t, 384, px.Y, 1e-6)

	// 1 m east at 50 m with f=1000 moves 20 px right; 1 m north moves 20 px up.
	ne := geoFrame().FromLocal(r3.Vector{X: 1, Y: 1})
	px, err = s.Project(ctx, "cam1", ne)
	require.NoError(t, err)
	require.InDelta(t, 532, px.X, 1e-6)
	require.InDelta(t, 364, px.Y, 1e-6)
}

func TestProject_BehindCamera(t *testing.T) {
	s := createTestScene(t)
	above := origin.Add(r3.Vector{Z: 100})

	_, err := s.Project(context.Background(), "cam1", above)
	require.ErrorIs(t, err, ErrBehindCamera)
}

func TestUnproject_RoundTrip(t *testing.T) {
	s := createTestScene(t)
	ctx := context.Background()

	for _, px := range []marker.Pixel{{X: 512, Y: 384}, {X: 100, Y: 700}, {X: 1000, Y: 20}} {
		p, err := s.Unproject(ctx, "cam2", px)
		require.NoError(t, err)
		require.InDelta(t, origin.Z, p.Z, 1e-6, "point must lie on the ground")

		back, err := s.Project(ctx, "cam2", p)
		require.NoError(t, err)
		require.InDelta(t, px.X, back.X, 1e-6)
		require.InDelta(t, px.Y, back.Y, 1e-6)
	}
}

func TestUnproject_NoSurface(t *testing.T) {
	horizontal := CameraSpec{
		ID: "h", Width: 100, Height: 100, Fx: 100, Fy: 100, Cx: 50, Cy: 50,
		Rotation: [9]float64{
			0, -1, 0,
			0, 0, -1,
			1, 0, 0,
		},
		Center: r3.Vector{Z: 50},
	}
	s, err := New(File{Cameras: []CameraSpec{horizontal}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Unproject(ctx, "h", marker.Pixel{X: 50, Y: 50})
	require.ErrorIs(t, err, marker.ErrNoSurface, "ray parallel to the ground")

	_, err = s.Unproject(ctx, "h", marker.Pixel{X: 50, Y: 10})
	require.ErrorIs(t, err, marker.ErrNoSurface, "ray pointing at the sky")

	p, err := s.Unproject(ctx, "h", marker.Pixel{X: 50, Y: 90})
	require.NoError(t, err)
	require.InDelta(t, 0, p.Z, 1e-9)
	require.Greater(t, p.X, 0.0)
}

func TestUnknownImage(t *testing.T) {
	s := createTestScene(t)
	ctx := context.Background()

	_, err := s.Unproject(ctx, "nope", marker.Pixel{})
	require.ErrorIs(t, err, ErrUnknownImage)
	_, err = s.Project(ctx, "nope", r3.Vector{})
	require.ErrorIs(t, err, ErrUnknownImage)
	_, err = s.LoadImage(ctx, "nope")
	require.ErrorIs(t, err, ErrUnknownImage)
}

func TestNew_Invalid(t *testing.T) {
	good := NadirCamera("c", "", 100, 100, 100, r3.Vector{Z: 10})

	badRotation := good
	badRotation.Rotation = [9]float64{2, 0, 0, 0, 1, 0, 0, 0, 1}
	mirrored := good
	mirrored.Rotation = [9]float64{-1, 0, 0, 0, 1, 0, 0, 0, 1}
	noFocal := good
	noFocal.Fx = 0
	noSize := good
	noSize.Width = 0
	noID := good
	noID.ID = ""

	tests := []struct {
		name string
		file File
	}{
		{"bad rotation", File{Cameras: []CameraSpec{badRotation}}},
		{"mirrored rotation", File{Cameras: []CameraSpec{mirrored}}},
		{"no focal length", File{Cameras: []CameraSpec{noFocal}}},
		{"no size", File{Cameras: []CameraSpec{noSize}}},
		{"no camera id", File{Cameras: []CameraSpec{noID}}},
		{"duplicate camera", File{Cameras: []CameraSpec{good, good}}},
		{"duplicate marker", File{Markers: []marker.Reference{{ID: "m"}, {ID: "m"}}}},
		{"marker without id", File{Markers: []marker.Reference{{Label: "x"}}}},
		{"projection of unknown marker", File{
			Cameras:     []CameraSpec{good},
			Projections: map[string][]marker.Projection{"m": {{ImageID: "c"}}},
		}},
		{"projection in unknown image", File{
			Cameras:     []CameraSpec{good},
			Markers:     []marker.Reference{{ID: "m"}},
			Projections: map[string][]marker.Projection{"m": {{ImageID: "other"}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.file)
			require.Error(t, err)
		})
	}
}

func TestTriangulate(t *testing.T) {
	s := createTestScene(t)
	target := r3.Vector{X: 3, Y: -2, Z: 1.5}

	var obs []observation
	for _, id := range []string{"cam1", "cam2"} {
		cam := s.cameras[id]
		px, err := cam.project(target)
		require.NoError(t, err)
		obs = append(obs, observation{proj: cam.proj, pixel: px})
	}

	got, ok := triangulate(obs)
	require.True(t, ok)
	require.InDelta(t, 0, got.Sub(target).Norm(), 1e-6)

	_, ok = triangulate(obs[:1])
	require.False(t, ok, "one view is not enough")
}

func TestUpdateTransform(t *testing.T) {
	s := createTestScene(t)
	ctx := context.Background()

	// The marker really sits 0.5 m east of its surveyed position.
	actual := geoFrame().FromLocal(r3.Vector{X: 0.5})
	for _, id := range []string{"cam1", "cam2"} {
		px, err := s.Project(ctx, id, actual)
		require.NoError(t, err)
		s.Projections().Set("gcp1", marker.Projection{ImageID: id, Pixel: px, Pinned: true})
	}

	before, err := s.MarkerEstimates(ctx)
	require.NoError(t, err)
	require.Equal(t, origin, before["gcp1"])

	require.NoError(t, s.UpdateTransform(ctx))
	after, err := s.MarkerEstimates(ctx)
	require.NoError(t, err)
	require.InDelta(t, 0, geoFrame().Distance(after["gcp1"], actual), 1e-6)

	// Dropping one pin falls back to the surveyed location.
	s.Projections().Clear("gcp1", "cam2")
	require.NoError(t, s.UpdateTransform(ctx))
	after, err = s.MarkerEstimates(ctx)
	require.NoError(t, err)
	require.Equal(t, origin, after["gcp1"])

	require.NoError(t, s.OptimizeCameras(ctx))
	updates, optimizations := s.RefinementCounts()
	require.Equal(t, 2, updates)
	require.Equal(t, 1, optimizations)
}

func TestAnnotations(t *testing.T) {
	s := createTestScene(t)
	ctx := context.Background()

	require.ErrorIs(t, s.AddPoint(ctx, "x", r3.Vector{}), ErrNoLayer)

	require.NoError(t, s.EnsureLayer(ctx, "gcp-detections"))
	require.NoError(t, s.AddPoint(ctx, "DJI_0001.JPG", origin))
	require.NoError(t, s.EnsureLayer(ctx, "gcp-detections"))

	got := s.Layer("gcp-detections")
	require.Equal(t, []Annotation{{Label: "DJI_0001.JPG", Point: origin}}, got)
}

func TestLoadImage(t *testing.T) {
	mem := image.NewRGBA(image.Rect(0, 0, 4, 4))
	s := createTestScene(t, WithImage("cam1", mem))
	ctx := context.Background()

	img, err := s.LoadImage(ctx, "cam1")
	require.NoError(t, err)
	require.Same(t, mem, img)

	_, err = s.LoadImage(ctx, "cam2")
	require.ErrorIs(t, err, ErrNoImageData)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.Set(1, 1, color.White)
	f, err := os.Create(filepath.Join(dir, "DJI_0001.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	sceneJSON := `{
		"frame": {"geographic": true, "origin": {"x": 9.2193, "y": 48.7162, "z": 364}},
		"ground_elevation": 364,
		"cameras": [{
			"id": "cam1", "label": "DJI_0001", "path": "DJI_0001.png",
			"width": 8, "height": 6, "fx": 10, "fy": 10, "cx": 4, "cy": 3,
			"rotation": [1, 0, 0, 0, -1, 0, 0, 0, -1],
			"center": {"x": 9.2193, "y": 48.7162, "z": 414}
		}],
		"markers": [{"id": "gcp1", "label": "GCP 1", "location": {"x": 9.2193, "y": 48.7162, "z": 364}}]
	}`
	path := filepath.Join(dir, "scene.json")
	require.NoError(t, os.WriteFile(path, []byte(sceneJSON), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	ctx := context.Background()

	images, err := s.Images(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, filepath.Join(dir, "DJI_0001.png"), images[0].Path)

	loaded, err := s.LoadImage(ctx, "cam1")
	require.NoError(t, err)
	require.Equal(t, 8, loaded.Bounds().Dx())

	markers, err := s.Markers(ctx)
	require.NoError(t, err)
	require.Equal(t, origin, markers[0].Location)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("/nonexistent/scene.json")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrUnknownImage))
}

func TestNew_RecordedProjections(t *testing.T) {
	f := File{
		Frame:   geoFrame(),
		Cameras: []CameraSpec{NadirCamera("cam1", "", 100, 100, 100, origin.Add(r3.Vector{Z: 50}))},
		Markers: []marker.Reference{{ID: "gcp1", Location: origin}},
		Projections: map[string][]marker.Projection{
			"gcp1": {{ImageID: "cam1", Pixel: marker.Pixel{X: 50, Y: 50}, Pinned: true}},
		},
	}
	s, err := New(f)
	require.NoError(t, err)

	entries := s.Projections().Entries("gcp1")
	require.Len(t, entries, 1)
	require.Equal(t, marker.Pixel{X: 50, Y: 50}, entries[0].Pixel)
	require.True(t, entries[0].Pinned)
}
