// Package matrix contains sampling helpers for index and value selection.
package matrix

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// SampleDistinctIntegers fills dst with len(dst) pairwise distinct integers drawn uniformly from [0, n).
// The cost is bounded by len(dst) regardless of collisions. A nil src uses the global source. An empty dst
// is left untouched and draws nothing from src.
func SampleDistinctIntegers(dst []int, n int, src rand.Source) error {
	if len(dst) == 0 {
		return nil
	}
	if n <= 0 {
		return errors.Errorf("cannot sample from an empty range [0, %d)", n)
	}
	if len(dst) > n {
		return errors.Errorf("cannot sample %d distinct integers from [0, %d)", len(dst), n)
	}
	sampleuv.WithoutReplacement(dst, n, src)
	return nil
}
