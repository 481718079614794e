package vocab

import "math"

// LinearBins returns count evenly spaced integer values covering
// [lo, hi] inclusive, ascending and deduplicated. With count 1 the single
// bin sits at hi, matching a one-bin velocity setup where everything maps
// to the loudest representative.
func LinearBins(lo, hi, count int) []int {
	if count <= 0 {
		return nil
	}
	if count == 1 {
		return []int{hi}
	}
	out := make([]int, 0, count)
	step := float64(hi-lo) / float64(count-1)
	prev := math.MinInt
	for i := 0; i < count; i++ {
		v := lo + int(math.Round(float64(i)*step))
		if v == prev {
			continue
		}
		out = append(out, v)
		prev = v
	}
	return out
}

// LinearBinsF is LinearBins over float64 values, used for tempo bins.
func LinearBinsF(lo, hi float64, count int) []float64 {
	if count <= 0 {
		return nil
	}
	if count == 1 {
		return []float64{hi}
	}
	out := make([]float64, count)
	step := (hi - lo) / float64(count-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// NearestBin returns the index of the bin value closest to v. Ties go to
// the lower bin. Bins must be non-empty and ascending.
func NearestBin(bins []int, v int) int {
	best, bestDist := 0, math.MaxInt
	for i, b := range bins {
		d := b - v
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// NearestBinF is NearestBin over float64 bins.
func NearestBinF(bins []float64, v float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, b := range bins {
		d := math.Abs(b - v)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
