package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/gcp-tools-mcp/internal/detection"
	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
	"github.com/ironsheep/gcp-tools-mcp/internal/scene"
)

var surveyOrigin = r3.Vector{X: 9.2193, Y: 48.7162, Z: 364}

func surveyFrame() scene.Frame {
	return scene.Frame{Geographic: true, Origin: surveyOrigin}
}

// createFieldPhoto returns a grass-coloured photo with a black and white
// target whose quadrants meet at (cx, cy).
func createFieldPhoto(width, height, cx, cy, quad int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	grass := color.RGBA{R: 40, G: 140, B: 40, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, grass)
		}
	}
	for y := cy - quad; y < cy+quad; y++ {
		for x := cx - quad; x < cx+quad; x++ {
			if (x < cx) == (y < cy) {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

// createNadirScene places one nadir camera 50 m above the survey origin and
// attaches photo as its pixels.
func createNadirScene(t *testing.T, photo image.Image, markers ...marker.Reference) *scene.Scene {
	t.Helper()
	f := scene.File{
		Frame:           surveyFrame(),
		GroundElevation: surveyOrigin.Z,
		Cameras: []scene.CameraSpec{
			scene.NadirCamera("cam1", "DJI_0001.JPG", 1024, 768, 1000, surveyOrigin.Add(r3.Vector{Z: 50})),
		},
		Markers: markers,
	}
	s, err := scene.New(f, scene.WithImage("cam1", photo))
	require.NoError(t, err)
	return s
}

func TestScenario_SingleTarget(t *testing.T) {
	photo := createFieldPhoto(1024, 768, 512, 384, 6)
	s := createNadirScene(t, photo, marker.Reference{ID: "gcp1", Label: "GCP 1", Location: surveyOrigin})

	p, err := New(s, detection.New(detection.DefaultConfig()), DefaultConfig())
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Detections)
	require.Equal(t, 1, summary.Matches)
	require.Equal(t, 0, summary.Unpinned)
	require.Equal(t, map[string]int{"gcp1": 1}, summary.PinCounts)
	require.Nil(t, summary.ReferenceRMS, "a single pin does not move the estimate")
	require.False(t, summary.NeedsReview)

	entries := s.Projections().Entries("gcp1")
	require.Len(t, entries, 1)
	require.True(t, entries[0].Pinned)
	require.Equal(t, "cam1", entries[0].ImageID)
	require.InDelta(t, 512, entries[0].Pixel.X, 1)
	require.InDelta(t, 384, entries[0].Pixel.Y, 1)

	require.Len(t, s.Layer("gcp-detections"), 1)
	updates, optimizations := s.RefinementCounts()
	require.Equal(t, 1, updates)
	require.Equal(t, 1, optimizations)
}

func TestScenario_NearestMarkerWins(t *testing.T) {
	photo := createFieldPhoto(1024, 768, 512, 384, 6)
	far := marker.Reference{ID: "gcp_far", Location: surveyOrigin.Add(r3.Vector{X: 0.0001})}
	near := marker.Reference{ID: "gcp_near", Location: surveyOrigin.Add(r3.Vector{X: 0.00005})}
	s := createNadirScene(t, photo, far, near)

	p, err := New(s, detection.New(detection.DefaultConfig()), DefaultConfig())
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gcp_near", summary.Images[0].MarkerID)
	require.InDelta(t, 0.00005, summary.Images[0].Distance, 1e-6)
	require.Len(t, s.Projections().Entries("gcp_near"), 1)
	require.Empty(t, s.Projections().Entries("gcp_far"))
	require.Equal(t, []string{"gcp_far"}, summary.MarkersWithoutPins)
}

func TestScenario_NoTarget(t *testing.T) {
	photo := createFieldPhoto(1024, 768, 512, 384, 0)
	s := createNadirScene(t, photo, marker.Reference{ID: "gcp1", Location: surveyOrigin})

	p, err := New(s, detection.New(detection.DefaultConfig()), DefaultConfig())
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Detections)
	require.Equal(t, 0, summary.Matches)
	require.Equal(t, []string{"gcp1"}, summary.MarkersWithoutPins)
	require.Empty(t, s.Layer("gcp-detections"))
}

// TestScenario_OutliersUnpinned flies ten cameras along a line over one
// marker. Three detections are displaced by (250, 200) px: still inside the
// matching gate, but 102500 px² away from the reprojected estimate.
func TestScenario_OutliersUnpinned(t *testing.T) {
	frame := surveyFrame()
	f := scene.File{
		Frame:           frame,
		GroundElevation: surveyOrigin.Z,
		Markers:         []marker.Reference{{ID: "gcp1", Location: surveyOrigin}},
	}
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("cam%d", i)
		center := frame.FromLocal(r3.Vector{X: 2 * float64(i), Z: 50})
		f.Cameras = append(f.Cameras, scene.NadirCamera(id, id+".JPG", 1024, 768, 1000, center))
	}

	var opts []scene.Option
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("cam%d", i)
		opts = append(opts, scene.WithImage(id, idImage{Gray: image.NewGray(image.Rect(0, 0, 1, 1)), id: id}))
	}
	s, err := scene.New(f, opts...)
	require.NoError(t, err)

	ctx := context.Background()
	outliers := map[string]bool{"cam2": true, "cam5": true, "cam8": true}
	det := detectorFunc(func(ctx context.Context, id string) (*detection.Result, error) {
		px, err := s.Project(ctx, id, surveyOrigin)
		if err != nil {
			return nil, err
		}
		if outliers[id] {
			px.X += 250
			px.Y += 200
		}
		return foundAt(px), nil
	})

	p, err := New(s, det, DefaultConfig())
	require.NoError(t, err)

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, summary.Matches)
	require.Equal(t, 3, summary.Unpinned)
	require.Equal(t, map[string]int{"gcp1": 7}, summary.PinCounts)

	entries := s.Projections().Entries("gcp1")
	require.Len(t, entries, 7)
	for _, e := range entries {
		require.False(t, outliers[e.ImageID], "outlier %s still pinned", e.ImageID)
	}

	// The remaining pins triangulate back onto the surveyed location.
	require.NotNil(t, summary.ReferenceRMS)
	require.Less(t, *summary.ReferenceRMS, 1e-3)
	require.False(t, summary.NeedsReview)

	estimates, err := s.MarkerEstimates(ctx)
	require.NoError(t, err)
	require.Less(t, math.Abs(frame.Distance(estimates["gcp1"], surveyOrigin)), 1e-3)
}
