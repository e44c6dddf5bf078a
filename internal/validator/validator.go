// Package validator prunes pinned projections that disagree with the
// current marker estimates.
//
// For every pin the marker's best 3D estimate is projected back into the
// pinned image and the squared pixel distance to the stored pixel is
// compared with a threshold. Validate only computes the decision; applying
// it to a projection store is the caller's job.
package validator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

// ErrNoProjector is returned when no projection function is supplied.
var ErrNoProjector = errors.New("validator: no projector")

// ProjectFunc projects a 3D point into an image.
type ProjectFunc func(ctx context.Context, imageID string, p r3.Vector) (marker.Pixel, error)

// Config holds the validation threshold.
type Config struct {
	// MaxSquaredError is the largest squared pixel error, in px², a pin may
	// have and stay pinned. Errors equal to it are kept.
	MaxSquaredError float64 `json:"max_squared_error"`
}

// DefaultConfig returns the default threshold of 80000 px² (about 283 px).
func DefaultConfig() Config {
	return Config{MaxSquaredError: 80000}
}

// Validate reports an invalid threshold.
func (c Config) Validate() error {
	if c.MaxSquaredError <= 0 {
		return fmt.Errorf("max_squared_error must be positive, got %v", c.MaxSquaredError)
	}
	return nil
}

// PinError is the reprojection error of one pin.
type PinError struct {
	marker.Pin

	// Checked is false when the error could not be computed; Reason says why.
	Checked bool   `json:"checked"`
	Reason  string `json:"reason,omitempty"`

	Reprojected  marker.Pixel `json:"reprojected"`
	SquaredError float64      `json:"squared_error"`
}

// Report splits the validated pins by outcome. Each list keeps input order.
type Report struct {
	Kept      []PinError `json:"kept"`
	Unpinned  []PinError `json:"unpinned"`
	Unchecked []PinError `json:"unchecked"`
}

// RMS returns the root mean square pixel error over all checked pins, or 0
// when none was checked.
func (r *Report) RMS() float64 {
	return rms(append(append([]PinError(nil), r.Kept...), r.Unpinned...))
}

// Evaluate computes the reprojection error of every pin against
// estimates, keyed by marker ID. Pins whose marker has no estimate, or whose
// estimate fails to project, are returned unchecked.
func Evaluate(ctx context.Context, pins []marker.Pin, estimates map[string]r3.Vector, project ProjectFunc) ([]PinError, error) {
	if project == nil {
		return nil, ErrNoProjector
	}

	out := make([]PinError, 0, len(pins))
	for _, pin := range pins {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluate pins: %w", err)
		}

		pe := PinError{Pin: pin}
		estimate, ok := estimates[pin.MarkerID]
		if !ok {
			pe.Reason = "no estimate"
			out = append(out, pe)
			continue
		}

		px, err := project(ctx, pin.ImageID, estimate)
		if err != nil {
			pe.Reason = err.Error()
			out = append(out, pe)
			continue
		}

		pe.Checked = true
		pe.Reprojected = px
		pe.SquaredError = pin.Pixel.SquaredDistance(px)
		out = append(out, pe)
	}
	return out, nil
}

// Validate evaluates pins and decides which to unpin: a pin is unpinned when
// its squared error is strictly greater than cfg.MaxSquaredError. Unchecked
// pins stay pinned.
func Validate(ctx context.Context, pins []marker.Pin, estimates map[string]r3.Vector, project ProjectFunc, cfg Config) (*Report, error) {
	evaluated, err := Evaluate(ctx, pins, estimates, project)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, pe := range evaluated {
		switch {
		case !pe.Checked:
			report.Unchecked = append(report.Unchecked, pe)
		case pe.SquaredError > cfg.MaxSquaredError:
			report.Unpinned = append(report.Unpinned, pe)
		default:
			report.Kept = append(report.Kept, pe)
		}
	}
	return report, nil
}

// Apply clears every unpinned projection of the report from store and
// returns how many were cleared.
func Apply(store marker.ProjectionStore, report *Report) int {
	for _, pe := range report.Unpinned {
		store.Clear(pe.MarkerID, pe.ImageID)
	}
	return len(report.Unpinned)
}

func rms(errs []PinError) float64 {
	if len(errs) == 0 {
		return 0
	}
	var sum float64
	for _, pe := range errs {
		sum += pe.SquaredError
	}
	return math.Sqrt(sum / float64(len(errs)))
}
