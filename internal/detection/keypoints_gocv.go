//go:build gocv

package detection

import (
	"image"
	"log"
	"sort"

	"gocv.io/x/gocv"
)

// orbLevels is the pyramid depth used by the ORB backend.
const orbLevels = 8

// ORBDetector finds keypoints with OpenCV's ORB detector using the Harris
// score. It is only available when built with -tags gocv.
type ORBDetector struct {
	cfg KeypointConfig
}

// NewORBDetector creates an ORB-backed keypoint detector.
func NewORBDetector(cfg KeypointConfig) *ORBDetector {
	return &ORBDetector{cfg: cfg}
}

// Detect returns up to limit keypoints, strongest first.
func (d *ORBDetector) Detect(gray *image.Gray, limit int) []Keypoint {
	if gray == nil || limit <= 0 {
		return nil
	}

	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		log.Printf("orb: convert image: %v", err)
		return nil
	}
	defer mat.Close()

	orb := gocv.NewORBWithParams(
		limit,
		float32(d.cfg.ScaleFactor),
		orbLevels,
		d.cfg.EdgeMargin,
		0,
		2,
		gocv.ORBScoreTypeHarris,
		d.cfg.PatchSize,
		d.cfg.FastThreshold,
	)
	defer orb.Close()

	found := orb.Detect(mat)
	bounds := gray.Bounds()
	keypoints := make([]Keypoint, 0, len(found))
	for _, kp := range found {
		keypoints = append(keypoints, Keypoint{
			X:        kp.X + float64(bounds.Min.X),
			Y:        kp.Y + float64(bounds.Min.Y),
			Response: kp.Response,
			Level:    kp.Octave,
		})
	}

	sort.SliceStable(keypoints, func(i, j int) bool {
		return keypoints[i].Response > keypoints[j].Response
	})
	if len(keypoints) > limit {
		keypoints = keypoints[:limit]
	}
	return keypoints
}

// newDefaultKeypointDetector returns the OpenCV ORB backend.
func newDefaultKeypointDetector(cfg KeypointConfig) KeypointDetector {
	return NewORBDetector(cfg)
}
