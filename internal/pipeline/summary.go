package pipeline

import (
	"fmt"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

// Phase is a step of a batch run.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDetecting
	PhaseValidating
	PhaseRefining
	PhaseDone
)

var phaseNames = [...]string{"init", "detecting", "validating", "refining", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ImageResult is the outcome of one image.
type ImageResult struct {
	ImageID string        `json:"image_id"`
	Label   string        `json:"label"`
	Stage   string        `json:"stage,omitempty"`
	Found   bool          `json:"found"`
	Pixel   *marker.Pixel `json:"pixel,omitempty"`

	MarkerID string  `json:"marker_id,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Accepted bool    `json:"accepted"`

	Error string `json:"error,omitempty"`
}

// Summary reports a finished batch.
type Summary struct {
	BatchID string `json:"batch_id"`
	Skipped bool   `json:"skipped"`

	ImagesProcessed int `json:"images_processed"`
	Detections      int `json:"detections"`
	Timeouts        int `json:"timeouts"`
	Matches         int `json:"matches"`
	NewlyPinned     int `json:"newly_pinned"`
	Unpinned        int `json:"unpinned"`
	Unchecked       int `json:"unchecked"`
	Failures        int `json:"failures"`

	Images []ImageResult `json:"images"`

	PinCounts          map[string]int `json:"pin_counts"`
	MarkersWithoutPins []string       `json:"markers_without_pins"`

	// ReferenceRMS is the RMS distance in metres between the estimates and
	// surveyed locations of markers pinned in at least two images. Nil when
	// the scene cannot measure distances or no marker qualifies.
	ReferenceRMS *float64 `json:"reference_rms,omitempty"`

	NeedsReview bool     `json:"needs_review"`
	Reasons     []string `json:"reasons,omitempty"`

	Duration Duration `json:"duration"`
}
