package matrix

import (
	"math/rand/v2"
	"testing"

	"go.viam.com/test"
)

func TestSampleDistinctIntegers(t *testing.T) {
	src := rand.NewPCG(1, 2)
	dst := make([]int, 5)
	for trial := 0; trial < 1000; trial++ {
		n := 5 + trial%20
		test.That(t, SampleDistinctIntegers(dst, n, src), test.ShouldBeNil)
		seen := map[int]bool{}
		for _, idx := range dst {
			test.That(t, idx, test.ShouldBeBetweenOrEqual, 0, n-1)
			test.That(t, seen[idx], test.ShouldBeFalse)
			seen[idx] = true
		}
	}

	// a sample as large as the range is a permutation
	all := make([]int, 5)
	test.That(t, SampleDistinctIntegers(all, 5, src), test.ShouldBeNil)
	total := 0
	for _, idx := range all {
		total += idx
	}
	test.That(t, total, test.ShouldEqual, 10)

	test.That(t, SampleDistinctIntegers(dst, 4, src), test.ShouldNotBeNil)
	test.That(t, SampleDistinctIntegers(dst, 0, src), test.ShouldNotBeNil)
}

func TestSampleDistinctIntegersEmpty(t *testing.T) {
	src := rand.NewPCG(1, 1)
	test.That(t, func() {
		test.That(t, SampleDistinctIntegers(nil, 20, src), test.ShouldBeNil)
		test.That(t, SampleDistinctIntegers([]int{}, 20, src), test.ShouldBeNil)
	}, test.ShouldNotPanic)

	// nothing was drawn, so the source is where a fresh one starts
	a := make([]int, 5)
	b := make([]int, 5)
	test.That(t, SampleDistinctIntegers(a, 100, src), test.ShouldBeNil)
	test.That(t, SampleDistinctIntegers(b, 100, rand.NewPCG(1, 1)), test.ShouldBeNil)
	test.That(t, a, test.ShouldResemble, b)
}

func TestSampleDistinctIntegersDeterministic(t *testing.T) {
	a := make([]int, 5)
	b := make([]int, 5)
	test.That(t, SampleDistinctIntegers(a, 100, rand.NewPCG(7, 7)), test.ShouldBeNil)
	test.That(t, SampleDistinctIntegers(b, 100, rand.NewPCG(7, 7)), test.ShouldBeNil)
	test.That(t, a, test.ShouldResemble, b)
}
