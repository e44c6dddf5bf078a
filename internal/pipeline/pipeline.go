// Package pipeline runs a detection batch over a scene.
//
// A batch moves through fixed phases:
//
//	Init -> Detecting -> Validating -> Refining -> Done
//
// Init prepares the annotation layer and reads the catalog. Detecting runs
// the detector on every image, in parallel, and feeds each detection to the
// matcher from a single goroutine, so projection writes never race. Validating
// unpins projections with a large reprojection error, once for the whole
// batch. Refining asks the scene to update its transform and cameras.
//
// Per-image problems (unreadable file, detector error, timeout) are counted in
// the Summary and never abort the batch. Missing capabilities, catalog
// failures, refinement failures and cancellation of the batch context do.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/gcp-tools-mcp/internal/detection"
	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
	"github.com/ironsheep/gcp-tools-mcp/internal/matcher"
	"github.com/ironsheep/gcp-tools-mcp/internal/validator"
)

var (
	// ErrNoScene is returned when no scene is supplied.
	ErrNoScene = errors.New("pipeline: no scene")
	// ErrNoDetector is returned when no detector is supplied.
	ErrNoDetector = errors.New("pipeline: no detector")
)

// Pipeline runs batches against one scene. Run may be called repeatedly;
// calls must not overlap.
type Pipeline struct {
	scene    Scene
	detector Detector
	cfg      Config

	mu    sync.Mutex
	phase Phase
}

// New creates a pipeline.
func New(scene Scene, det Detector, cfg Config) (*Pipeline, error) {
	if scene == nil {
		return nil, ErrNoScene
	}
	if det == nil {
		return nil, ErrNoDetector
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &Pipeline{scene: scene, detector: det, cfg: cfg}, nil
}

// Phase returns the phase of the current or last run.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Pipeline) enter(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
	p.debugf("phase %s", phase)
}

func (p *Pipeline) debugf(format string, args ...interface{}) {
	if p.cfg.Debug {
		log.Printf("pipeline: "+format, args...)
	}
}

// detected carries one image's detection from a worker to the matcher.
type detected struct {
	index  int
	image  marker.Image
	result *detection.Result
	err    error
}

type pinKey struct {
	markerID string
	imageID  string
}

// Run processes one batch.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{BatchID: uuid.NewString()}

	// Init
	p.enter(PhaseInit)
	if err := p.scene.EnsureLayer(ctx, p.cfg.LayerName); err != nil {
		return nil, fmt.Errorf("ensure layer %s: %w", p.cfg.LayerName, err)
	}
	refs, err := p.scene.Markers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	images, err := p.scene.Images(ctx)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	store := p.scene.Projections()
	if store == nil {
		return nil, matcher.ErrNoStore
	}
	markerIDs := make([]string, len(refs))
	for i, r := range refs {
		markerIDs[i] = r.ID
	}

	pinnedBefore := make(map[pinKey]bool)
	for _, pin := range marker.PinnedOf(store, markerIDs) {
		pinnedBefore[pinKey{pin.MarkerID, pin.ImageID}] = true
	}

	if p.cfg.SkipIfPinned && len(pinnedBefore) > 0 {
		log.Printf("pipeline: batch %s skipped, %d projections already pinned", summary.BatchID, len(pinnedBefore))
		summary.Skipped = true
		p.finish(ctx, summary, refs, store, start)
		return summary, nil
	}

	m, err := matcher.New(p.cfg.Matcher, p.scene, store, p.scene)
	if err != nil {
		return nil, err
	}

	// Detecting
	p.enter(PhaseDetecting)
	summary.Images = make([]ImageResult, len(images))
	results := make(chan detected)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	go func() {
		for i, img := range images {
			i, img := i, img
			g.Go(func() error {
				results <- p.detect(gctx, i, img)
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	for d := range results {
		summary.ImagesProcessed++
		ir := &summary.Images[d.index]
		ir.ImageID = d.image.ID
		ir.Label = d.image.Label

		if d.err != nil {
			summary.Failures++
			ir.Error = d.err.Error()
			log.Printf("Warning: image %s: %v", d.image.ID, d.err)
			continue
		}

		ir.Stage = d.result.Stage.String()
		if d.result.Stage == detection.StageTimeout {
			summary.Timeouts++
			p.debugf("image %s: detection timed out", d.image.ID)
		}
		if !d.result.Found {
			p.debugf("image %s: no marker (%s)", d.image.ID, d.result.Stage)
			continue
		}

		summary.Detections++
		ir.Found = true
		px := d.result.Center
		ir.Pixel = &px

		match, err := m.Match(ctx, d.image, px, refs)
		if err != nil {
			summary.Failures++
			ir.Error = err.Error()
			log.Printf("Warning: image %s: %v", d.image.ID, err)
			continue
		}
		ir.MarkerID = match.MarkerID
		ir.Distance = match.Distance
		ir.Accepted = match.Accepted
		if match.Accepted {
			summary.Matches++
			if !pinnedBefore[pinKey{match.MarkerID, d.image.ID}] {
				summary.NewlyPinned++
			}
			p.debugf("image %s: pinned to %s at (%.1f, %.1f)", d.image.ID, match.MarkerID, px.X, px.Y)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch %s cancelled: %w", summary.BatchID, err)
	}

	// Validating
	p.enter(PhaseValidating)
	estimates, err := p.scene.MarkerEstimates(ctx)
	if err != nil {
		return nil, fmt.Errorf("marker estimates: %w", err)
	}
	report, err := validator.Validate(ctx, marker.PinnedOf(store, markerIDs), estimates, p.scene.Project, p.cfg.Validator)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	summary.Unpinned = validator.Apply(store, report)
	summary.Unchecked = len(report.Unchecked)
	for _, pe := range report.Unpinned {
		log.Printf("pipeline: unpinned %s in %s, squared error %.0f px²", pe.MarkerID, pe.ImageID, pe.SquaredError)
	}

	// Refining
	p.enter(PhaseRefining)
	if err := p.scene.UpdateTransform(ctx); err != nil {
		return nil, fmt.Errorf("update transform: %w", err)
	}
	if err := p.scene.OptimizeCameras(ctx); err != nil {
		return nil, fmt.Errorf("optimize cameras: %w", err)
	}

	p.finish(ctx, summary, refs, store, start)
	log.Printf("pipeline: batch %s done: %d images, %d detections, %d matches, %d unpinned, %d failures",
		summary.BatchID, summary.ImagesProcessed, summary.Detections, summary.Matches, summary.Unpinned, summary.Failures)
	return summary, nil
}

// detect loads and detects one image under the per-image timeout.
func (p *Pipeline) detect(ctx context.Context, index int, img marker.Image) detected {
	d := detected{index: index, image: img}

	if p.cfg.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.DetectTimeout))
		defer cancel()
	}

	pixels, err := p.scene.LoadImage(ctx, img.ID)
	if err != nil {
		d.err = fmt.Errorf("load: %w", err)
		return d
	}

	res, err := p.detector.Detect(ctx, pixels)
	if err != nil {
		d.err = fmt.Errorf("detect: %w", err)
		return d
	}
	if res == nil {
		d.err = errors.New("detect: no result")
		return d
	}
	d.result = res
	return d
}

// finish fills the marker statistics and the review verdict.
func (p *Pipeline) finish(ctx context.Context, summary *Summary, refs []marker.Reference, store marker.ProjectionStore, start time.Time) {
	p.enter(PhaseDone)

	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	summary.PinCounts = marker.PinCounts(store, ids)
	summary.MarkersWithoutPins = []string{}
	for _, id := range ids {
		if summary.PinCounts[id] == 0 {
			summary.MarkersWithoutPins = append(summary.MarkersWithoutPins, id)
		}
	}

	if metric, ok := p.scene.(Metric); ok {
		if estimates, err := p.scene.MarkerEstimates(ctx); err != nil {
			log.Printf("Warning: reference error unavailable: %v", err)
		} else {
			summary.ReferenceRMS = referenceRMS(metric, refs, estimates, summary.PinCounts)
		}
	}

	if p.cfg.MinPinsPerMarker > 0 {
		var few []string
		for _, id := range ids {
			if summary.PinCounts[id] < p.cfg.MinPinsPerMarker {
				few = append(few, id)
			}
		}
		if len(few) > 0 {
			sort.Strings(few)
			summary.Reasons = append(summary.Reasons,
				fmt.Sprintf("markers with fewer than %d pins: %v", p.cfg.MinPinsPerMarker, few))
		}
	}
	if p.cfg.MaxReferenceError > 0 && summary.ReferenceRMS != nil && *summary.ReferenceRMS >= p.cfg.MaxReferenceError {
		summary.Reasons = append(summary.Reasons,
			fmt.Sprintf("reference error %.3f m exceeds %.3f m", *summary.ReferenceRMS, p.cfg.MaxReferenceError))
	}
	summary.NeedsReview = len(summary.Reasons) > 0
	summary.Duration = Duration(time.Since(start))
}

// referenceRMS returns the RMS metric distance between estimate and surveyed
// location over markers pinned in at least two images.
func referenceRMS(metric Metric, refs []marker.Reference, estimates map[string]r3.Vector, counts map[string]int) *float64 {
	var sum float64
	n := 0
	for _, ref := range refs {
		estimate, ok := estimates[ref.ID]
		if !ok || counts[ref.ID] < 2 {
			continue
		}
		d := metric.LocalDistance(estimate, ref.Location)
		sum += d * d
		n++
	}
	if n == 0 {
		return nil
	}
	rms := math.Sqrt(sum / float64(n))
	return &rms
}
