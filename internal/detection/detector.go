package detection

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/gcp-tools-mcp/internal/marker"
)

// ErrNoImage is returned when Detect is called without an image.
var ErrNoImage = errors.New("detection: no image")

// Stage identifies where a detection finished.
type Stage int

const (
	// StageKeypoints: fewer than two keypoints were found.
	StageKeypoints Stage = iota
	// StageCrop: the window around the guess was empty.
	StageCrop
	// StageCentroid: the binarized window had no white pixel.
	StageCentroid
	// StageRadial: the radial symmetry check rejected the candidate.
	StageRadial
	// StageComplete: a marker was found.
	StageComplete
	// StageTimeout: the context ended before the pipeline finished.
	StageTimeout
)

var stageNames = map[Stage]string{
	StageKeypoints: "keypoints",
	StageCrop:      "crop",
	StageCentroid:  "centroid",
	StageRadial:    "radial",
	StageComplete:  "complete",
	StageTimeout:   "timeout",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the detector parameters.
type Config struct {
	// Saturation gate, on a 0-255 HSV scale.
	MinValue      uint8 `json:"min_value"`
	MaxSaturation uint8 `json:"max_saturation"`

	// MaxKeypoints caps the keypoints handed to the cluster stage.
	MaxKeypoints int `json:"max_keypoints"`

	// CropHalfSize is half the side of the window cut around the guess.
	CropHalfSize int `json:"crop_half_size"`

	// BinaryThreshold splits the window into black and white.
	BinaryThreshold uint8 `json:"binary_threshold"`

	Keypoints KeypointConfig `json:"keypoints"`
	Radial    RadialConfig   `json:"radial"`
}

// DefaultConfig returns the parameters tuned for black and white
// checkerboard survey targets.
func DefaultConfig() Config {
	return Config{
		MinValue:        100,
		MaxSaturation:   50,
		MaxKeypoints:    6,
		CropHalfSize:    16,
		BinaryThreshold: 150,
		Keypoints:       DefaultKeypointConfig(),
		Radial:          DefaultRadialConfig(),
	}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case c.MaxKeypoints < 2:
		return fmt.Errorf("max_keypoints must be at least 2, got %d", c.MaxKeypoints)
	case c.CropHalfSize < 1:
		return fmt.Errorf("crop_half_size must be positive, got %d", c.CropHalfSize)
	case c.Keypoints.Levels < 1:
		return fmt.Errorf("keypoints.levels must be positive, got %d", c.Keypoints.Levels)
	case c.Keypoints.ScaleFactor <= 1:
		return fmt.Errorf("keypoints.scale_factor must be greater than 1, got %v", c.Keypoints.ScaleFactor)
	case c.Keypoints.EdgeMargin < 0:
		return fmt.Errorf("keypoints.edge_margin must not be negative, got %d", c.Keypoints.EdgeMargin)
	case c.Radial.Radius <= 0:
		return fmt.Errorf("radial.radius must be positive, got %v", c.Radial.Radius)
	case c.Radial.Step <= 0:
		return fmt.Errorf("radial.step must be positive, got %v", c.Radial.Step)
	}
	return nil
}

// Result describes the outcome of one detection.
type Result struct {
	Found bool `json:"found"`

	// Center is the marker centre in full image coordinates. Only set when
	// Found is true.
	Center marker.Pixel `json:"center"`

	// Intermediate values, set as far as the pipeline got.
	Keypoints  []Keypoint      `json:"keypoints"`
	Guess      image.Point     `json:"guess"`
	Window     image.Rectangle `json:"window"`
	Centroid   marker.Pixel    `json:"centroid"`
	ArcDegrees float64         `json:"arc_degrees"`

	Stage Stage `json:"stage"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithKeypointDetector replaces the keypoint backend.
func WithKeypointDetector(kd KeypointDetector) Option {
	return func(d *Detector) {
		d.keypoints = kd
	}
}

// Detector locates one survey target per image. It holds no mutable state
// and is safe for concurrent use.
type Detector struct {
	cfg       Config
	keypoints KeypointDetector
}

// New creates a detector. Without WithKeypointDetector the build's default
// backend is used.
func New(cfg Config, opts ...Option) *Detector {
	d := &Detector{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.keypoints == nil {
		d.keypoints = newDefaultKeypointDetector(cfg.Keypoints)
	}
	return d
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect runs the detection pipeline on img.
//
// A missing marker is not an error: the result has Found false and Stage
// names the stage that rejected the image. When ctx ends between stages the
// result is returned with StageTimeout.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil {
		return nil, ErrNoImage
	}

	res := &Result{}
	expired := func() bool {
		if ctx.Err() != nil {
			res.Stage = StageTimeout
			return true
		}
		return false
	}

	if expired() {
		return res, nil
	}
	gray := SaturationGate(img, d.cfg.MinValue, d.cfg.MaxSaturation)

	if expired() {
		return res, nil
	}
	res.Keypoints = d.keypoints.Detect(gray, d.cfg.MaxKeypoints)

	guess, ok := ClusterGuess(res.Keypoints)
	if !ok {
		res.Stage = StageKeypoints
		return res, nil
	}
	res.Guess = guess

	if expired() {
		return res, nil
	}
	crop, window := CropAround(gray, guess, d.cfg.CropHalfSize)
	res.Window = window
	if crop == nil {
		res.Stage = StageCrop
		return res, nil
	}

	bin := Binarize(crop, d.cfg.BinaryThreshold)
	cx, cy, ok := MomentCentroid(bin)
	if !ok {
		res.Stage = StageCentroid
		return res, nil
	}
	res.Centroid = marker.Pixel{X: cx, Y: cy}

	arc, ok := VerifyRadial(bin, cx, cy, d.cfg.Radial)
	res.ArcDegrees = arc
	if !ok {
		res.Stage = StageRadial
		return res, nil
	}

	res.Found = true
	res.Stage = StageComplete
	res.Center = marker.Pixel{
		X: float64(window.Min.X) + cx,
		Y: float64(window.Min.Y) + cy,
	}
	return res, nil
}
