package pnp

import "math"

// dblMin is the smallest positive normal float64.
const dblMin = 2.2250738585072014e-308

// AdaptiveIterations returns the number of random trials needed to draw at least one sample of k inliers
// with probability confidence, when a fraction outlierRatio of the data are outliers. The result never
// exceeds maxIters, which is returned unchanged when the data look outlier free or when the estimate
// would reach the cap. The result is at least 1.
//
// N = log(1 - confidence) / log(1 - (1 - outlierRatio)^k).
func AdaptiveIterations(confidence, outlierRatio float64, k, maxIters int) int {
	confidence = math.Min(math.Max(confidence, 0), 1)
	outlierRatio = math.Min(math.Max(outlierRatio, 0), 1)

	num := math.Log(math.Max(1-confidence, dblMin))
	den := math.Log(1 - math.Pow(1-outlierRatio, float64(k)))

	// den is -Inf for an outlier free sample set.
	if den >= 0 || math.IsInf(den, -1) || -num >= float64(maxIters)*(-den) {
		return maxIters
	}
	iters := int(math.Round(num / den))
	if iters < 1 {
		return 1
	}
	return iters
}
