// Package detection locates printed ground control point targets in aerial
// photographs.
//
// The targets are black and white squares divided into four quadrants, two
// black and two white on opposite corners. The detector looks for exactly
// one target per image and reports its centre with sub-pixel precision.
//
// # Pipeline
//
// Detect runs a fixed sequence of stages, each exported as a pure function
// so it can be tested and reused on its own:
//
//  1. SaturationGate: keep bright, unsaturated pixels and convert to grayscale.
//     Vegetation, soil and shadows turn black.
//  2. KeypointDetector: the strongest corners of the gated image. The default
//     backend is a multi-scale Harris detector; building with -tags gocv
//     switches to OpenCV's ORB.
//  3. ClusterGuess: the midpoint of the two most central keypoints.
//  4. CropAround: a small window around the guess, clamped to the image.
//  5. Binarize and MomentCentroid: the centroid of the white pixels.
//  6. VerifyRadial: the window must show alternating quadrants around the
//     centroid over an arc of at least 30 degrees.
//
// The final centre is the window origin plus the centroid.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Determinism
//
// For a given image and configuration the result is always the same. Ties are
// broken by scan order (keypoints) or input order (cluster).
//
// # Limitations
//
// Only one target per image is reported. Targets smaller than a few pixels
// per quadrant, or partially hidden, are usually rejected by the radial check.
package detection
