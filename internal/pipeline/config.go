package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ironsheep/gcp-tools-mcp/internal/matcher"
	"github.com/ironsheep/gcp-tools-mcp/internal/validator"
)

// Duration is a time.Duration encoded in JSON as a string like "30s".
type Duration time.Duration

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Config holds the batch parameters.
type Config struct {
	// Workers is the number of images detected concurrently.
	Workers int `json:"workers"`

	// DetectTimeout bounds the detection of one image. A detection that runs
	// out of time counts as no detection. Zero disables the limit.
	DetectTimeout Duration `json:"detect_timeout"`

	// SkipIfPinned leaves a scene untouched when any marker already has a
	// pinned projection.
	SkipIfPinned bool `json:"skip_if_pinned"`

	// LayerName is the annotation layer receiving detected points.
	LayerName string `json:"layer_name"`

	// MinPinsPerMarker flags the batch for review when a marker ends with
	// fewer pins. Zero disables the check.
	MinPinsPerMarker int `json:"min_pins_per_marker"`

	// MaxReferenceError flags the batch for review when the RMS distance
	// between marker estimates and surveyed locations reaches it, in metres.
	// Zero disables the check.
	MaxReferenceError float64 `json:"max_reference_error"`

	Matcher   matcher.Config   `json:"matcher"`
	Validator validator.Config `json:"validator"`

	// Debug enables per-image logging.
	Debug bool `json:"debug"`
}

// DefaultConfig returns the batch defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		DetectTimeout:     Duration(60 * time.Second),
		LayerName:         "gcp-detections",
		MinPinsPerMarker:  0,
		MaxReferenceError: 0.1,
		Matcher:           matcher.DefaultConfig(),
		Validator:         validator.DefaultConfig(),
	}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.DetectTimeout < 0:
		return fmt.Errorf("detect_timeout must not be negative")
	case c.LayerName == "":
		return fmt.Errorf("layer_name must not be empty")
	case c.MinPinsPerMarker < 0:
		return fmt.Errorf("min_pins_per_marker must not be negative")
	case c.MaxReferenceError < 0:
		return fmt.Errorf("max_reference_error must not be negative")
	}
	if err := c.Matcher.Validate(); err != nil {
		return fmt.Errorf("matcher: %w", err)
	}
	if err := c.Validator.Validate(); err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	return nil
}
