package detection

import (
	"image"
	"math"
	"sort"
)

// ClusterGuess estimates the marker position from its keypoints.
//
// The checkerboard centre produces several corner responses close to each
// other while clutter produces isolated ones. For every keypoint the sum of
// its distances to all others is computed; the two keypoints with the lowest
// sums are the most central and their midpoint is the guess. Ties keep the
// original keypoint order. The midpoint is truncated to whole pixels.
//
// Fewer than two keypoints give no guess.
func ClusterGuess(kps []Keypoint) (image.Point, bool) {
	if len(kps) < 2 {
		return image.Point{}, false
	}

	sums := make([]float64, len(kps))
	for i := range kps {
		for j := range kps {
			if i == j {
				continue
			}
			sums[i] += math.Hypot(kps[i].X-kps[j].X, kps[i].Y-kps[j].Y)
		}
	}

	order := make([]int, len(kps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sums[order[a]] < sums[order[b]]
	})

	first, second := kps[order[0]], kps[order[1]]
	return image.Point{
		X: int((first.X + second.X) / 2),
		Y: int((first.Y + second.Y) / 2),
	}, true
}
