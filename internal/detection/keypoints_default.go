//go:build !gocv

package detection

// newDefaultKeypointDetector returns the pure-Go Harris backend.
func newDefaultKeypointDetector(cfg KeypointConfig) KeypointDetector {
	return NewHarrisDetector(cfg)
}
