package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

type fakeProjector struct {
	point r3.Vector
	err   error
	calls int
}

func (f *fakeProjector) Unproject(_ context.Context, _ string, _ marker.Pixel) (r3.Vector, error) {
	f.calls++
	return f.point, f.err
}

type fakeRecorder struct {
	labels []string
	points []r3.Vector
	err    error
}

func (f *fakeRecorder) AddPoint(_ context.Context, label string, p r3.Vector) error {
	f.labels = append(f.labels, label)
	f.points = append(f.points, p)
	return f.err
}

var testImage = marker.Image{ID: "img1", Label: "DJI_0001.JPG", Width: 1024, Height: 768}

func newTestMatcher(t *testing.T, proj Unprojector, rec PointRecorder) (*Matcher, *marker.MemoryStore) {
	t.Helper()
	store := marker.NewMemoryStore()
	m, err := New(DefaultConfig(), proj, store, rec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m, store
}

func TestMatch_NearestInsideGate(t *testing.T) {
	proj := &fakeProjector{point: r3.Vector{X: 9.2193, Y: 48.7162, Z: 364}}
	rec := &fakeRecorder{}
	m, store := newTestMatcher(t, proj, rec)

	refs := []marker.Reference{
		{ID: "far", Location: r3.Vector{X: 9.2193 + 0.0002, Y: 48.7162, Z: 300}},
		{ID: "near", Location: r3.Vector{X: 9.2193 + 0.0001, Y: 48.7162, Z: 400}},
		{ID: "outside", Location: r3.Vector{X: 9.3, Y: 48.7, Z: 364}},
	}
	px := marker.Pixel{X: 512, Y: 384}

	res, err := m.Match(context.Background(), testImage, px, refs)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if !res.Accepted || res.MarkerID != "near" {
		t.Fatalf("expected match on near, got %+v", res)
	}

	want := []marker.Projection{{ImageID: "img1", Pixel: px, Pinned: true}}
	if diff := cmp.Diff(want, store.Entries("near")); diff != "" {
		t.Errorf("near projections (-want +got):\n%s", diff)
	}
	if got := store.Entries("far"); len(got) != 0 {
		t.Errorf("far marker got projections: %+v", got)
	}

	if len(rec.points) != 1 || rec.labels[0] != "DJI_0001.JPG" {
		t.Errorf("expected one annotation labelled with the image, got %v", rec.labels)
	}
	if rec.points[0] != proj.point {
		t.Errorf("annotation must keep the raw point, got %v", rec.points[0])
	}
}

func TestMatch_OutsideGate(t *testing.T) {
	proj := &fakeProjector{point: r3.Vector{X: 0, Y: 0, Z: 10}}
	rec := &fakeRecorder{}
	m, store := newTestMatcher(t, proj, rec)

	refs := []marker.Reference{{ID: "m", Location: r3.Vector{X: 0.0003, Y: 0.0002}}}
	res, err := m.Match(context.Background(), testImage, marker.Pixel{X: 1, Y: 1}, refs)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Accepted {
		t.Errorf("distance %v must not be accepted", res.Distance)
	}
	if got := store.Entries("m"); len(got) != 0 {
		t.Errorf("unexpected projections: %+v", got)
	}
	if len(rec.points) != 1 {
		t.Errorf("candidate must be annotated even without match, got %d points", len(rec.points))
	}
}

func TestMatch_GateIsExclusive(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		accepted bool
	}{
		{"just inside", 0.00029, true},
		{"on the gate", 0.0003, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj := &fakeProjector{point: r3.Vector{Z: 10}}
			m, store := newTestMatcher(t, proj, nil)

			refs := []marker.Reference{{ID: "m", Location: r3.Vector{X: tt.x}}}
			res, err := m.Match(context.Background(), testImage, marker.Pixel{X: 5, Y: 5}, refs)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if res.Distance != tt.x {
				t.Errorf("Distance: got %v, want %v", res.Distance, tt.x)
			}
			if res.Accepted != tt.accepted {
				t.Errorf("Accepted: got %v, want %v", res.Accepted, tt.accepted)
			}
			if stored := len(store.Entries("m")) == 1; stored != tt.accepted {
				t.Errorf("stored projections: got %+v", store.Entries("m"))
			}
		})
	}
}

func TestMatch_TieGoesToFirstReference(t *testing.T) {
	proj := &fakeProjector{point: r3.Vector{}}
	m, store := newTestMatcher(t, proj, nil)

	refs := []marker.Reference{
		{ID: "east", Location: r3.Vector{X: 0.0001}},
		{ID: "west", Location: r3.Vector{X: -0.0001}},
	}
	res, err := m.Match(context.Background(), testImage, marker.Pixel{}, refs)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.MarkerID != "east" {
		t.Errorf("tie: got %s, want east", res.MarkerID)
	}
	if len(store.Entries("west")) != 0 {
		t.Error("a detection must feed at most one marker")
	}
}

func TestMatch_ElevationIgnored(t *testing.T) {
	proj := &fakeProjector{point: r3.Vector{X: 1, Y: 1, Z: 5000}}
	m, _ := newTestMatcher(t, proj, nil)

	refs := []marker.Reference{{ID: "m", Location: r3.Vector{X: 1, Y: 1, Z: -20}}}
	res, err := m.Match(context.Background(), testImage, marker.Pixel{}, refs)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if !res.Accepted || res.Distance != 0 {
		t.Errorf("got %+v, want accepted at distance 0", res)
	}
}

func TestMatch_NoSurface(t *testing.T) {
	proj := &fakeProjector{err: marker.ErrNoSurface}
	rec := &fakeRecorder{}
	m, _ := newTestMatcher(t, proj, rec)

	res, err := m.Match(context.Background(), testImage, marker.Pixel{}, []marker.Reference{{ID: "m"}})
	if err != nil {
		t.Fatalf("missing surface must not be an error, got %v", err)
	}
	if res.Surface || res.Accepted {
		t.Errorf("got %+v, want negative outcome", res)
	}
	if len(rec.points) != 0 {
		t.Error("nothing to annotate without a surface point")
	}
}

func TestMatch_ProjectorFailure(t *testing.T) {
	boom := errors.New("camera not aligned")
	m, _ := newTestMatcher(t, &fakeProjector{err: boom}, nil)

	_, err := m.Match(context.Background(), testImage, marker.Pixel{}, []marker.Reference{{ID: "m"}})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped projector error, got %v", err)
	}
}

func TestMatch_NoReferences(t *testing.T) {
	proj := &fakeProjector{point: r3.Vector{X: 1}}
	rec := &fakeRecorder{}
	m, _ := newTestMatcher(t, proj, rec)

	res, err := m.Match(context.Background(), testImage, marker.Pixel{}, nil)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Accepted || res.MarkerID != "" {
		t.Errorf("got %+v, want no match", res)
	}
	if len(rec.points) != 1 {
		t.Error("candidate must still be annotated")
	}
}

func TestMatch_AnnotationFailureIsNotFatal(t *testing.T) {
	proj := &fakeProjector{point: r3.Vector{}}
	rec := &fakeRecorder{err: errors.New("layer locked")}
	m, store := newTestMatcher(t, proj, rec)

	res, err := m.Match(context.Background(), testImage, marker.Pixel{}, []marker.Reference{{ID: "m"}})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if !res.Accepted || len(store.Entries("m")) != 1 {
		t.Errorf("annotation failure must not block the match, got %+v", res)
	}
}

func TestMatch_OverwritesPreviousProjection(t *testing.T) {
	proj := &fakeProjector{point: r3.Vector{}}
	m, store := newTestMatcher(t, proj, nil)
	store.Set("m", marker.Projection{ImageID: "img1", Pixel: marker.Pixel{X: 1, Y: 1}, Pinned: false})

	refs := []marker.Reference{{ID: "m"}}
	if _, err := m.Match(context.Background(), testImage, marker.Pixel{X: 5, Y: 6}, refs); err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	want := []marker.Projection{{ImageID: "img1", Pixel: marker.Pixel{X: 5, Y: 6}, Pinned: true}}
	if diff := cmp.Diff(want, store.Entries("m")); diff != "" {
		t.Errorf("projections (-want +got):\n%s", diff)
	}
}

func TestNew_MissingCapabilities(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, marker.NewMemoryStore(), nil); !errors.Is(err, ErrNoProjector) {
		t.Errorf("expected ErrNoProjector, got %v", err)
	}
	if _, err := New(DefaultConfig(), &fakeProjector{}, nil, nil); !errors.Is(err, ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
}

func TestPlanarDistance(t *testing.T) {
	got := PlanarDistance(r3.Vector{X: 0, Y: 0, Z: 100}, r3.Vector{X: 3, Y: 4, Z: -7})
	if got != 5 {
		t.Errorf("PlanarDistance: got %v, want 5", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := (Config{DistanceGate: 0}).Validate(); err == nil {
		t.Error("zero gate must be rejected")
	}
}
