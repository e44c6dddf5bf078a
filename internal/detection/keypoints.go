package detection

import "image"

// Keypoint is a corner candidate in full-resolution pixel coordinates.
type Keypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Response float64 `json:"response"`
	Level    int     `json:"level"`
}

// KeypointDetector finds the strongest corner-like features of a grayscale
// image. Implementations must be deterministic and return at most limit
// keypoints, strongest first.
type KeypointDetector interface {
	Detect(gray *image.Gray, limit int) []Keypoint
}

// KeypointConfig tunes the keypoint stage.
type KeypointConfig struct {
	// Levels is the number of pyramid levels searched (1 = full resolution only).
	Levels int `json:"levels"`

	// ScaleFactor is the size ratio between consecutive pyramid levels.
	ScaleFactor float64 `json:"scale_factor"`

	// EdgeMargin is the border, in pixels of each level, where no keypoint is reported.
	EdgeMargin int `json:"edge_margin"`

	// HarrisK is the sensitivity constant of the Harris response.
	HarrisK float64 `json:"harris_k"`

	// MinResponse drops corners weaker than this (intensities normalized to 0-1).
	MinResponse float64 `json:"min_response"`

	// SuppressRadius is the non-maximum suppression radius in pixels.
	SuppressRadius int `json:"suppress_radius"`

	// FastThreshold and PatchSize are used by the ORB backend only.
	FastThreshold int `json:"fast_threshold"`
	PatchSize     int `json:"patch_size"`
}

// DefaultKeypointConfig returns the keypoint defaults.
func DefaultKeypointConfig() KeypointConfig {
	return KeypointConfig{
		Levels:         3,
		ScaleFactor:    1.2,
		EdgeMargin:     15,
		HarrisK:        0.04,
		MinResponse:    1e-3,
		SuppressRadius: 3,
		FastThreshold:  20,
		PatchSize:      31,
	}
}
