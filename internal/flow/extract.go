package flow

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Extract reduces the first count correspondences to one flow vector and
// a quality in 0..255. Results whose distance from the median exceeds
// max(outlierRatio*|median|, minThreshold) are discarded and the rest are
// averaged. Too few usable correspondences yield (0, 0, 0).
func Extract(in []Correspondence, count int, outlierRatio, minThreshold float64) (float64, float64, uint8) {
	if count > len(in) {
		count = len(in)
	}
	if count > MaxCorrespondences {
		count = MaxCorrespondences
	}
	if count <= 0 {
		return 0, 0, 0
	}

	var bufX, bufY [MaxCorrespondences]float64
	xs, ys := bufX[:0], bufY[:0]
	for _, c := range in[:count] {
		if c.Quality > 0 {
			xs = append(xs, c.X)
			ys = append(ys, c.Y)
		}
	}
	valid := len(xs)
	if valid < 2 || valid < (count+4)/4 {
		return 0, 0, 0
	}

	mx, my := median(xs), median(ys)
	threshold := math.Max(outlierRatio*math.Hypot(mx, my), minThreshold)

	// xs and ys are no longer needed once the medians are known.
	inX, inY := bufX[:0], bufY[:0]
	for _, c := range in[:count] {
		if c.Quality <= 0 {
			continue
		}
		if math.Hypot(c.X-mx, c.Y-my) <= threshold {
			inX = append(inX, c.X)
			inY = append(inY, c.Y)
		}
	}
	if len(inX) == 0 {
		return 0, 0, 0
	}
	q := len(inX) * 255 / count
	return stat.Mean(inX, nil), stat.Mean(inY, nil), uint8(q)
}

// median sorts v in place.
func median(v []float64) float64 {
	slices.Sort(v)
	return stat.Quantile(0.5, stat.Empirical, v, nil)
}
