package pnp

import (
	"math/rand/v2"

	"github.com/benbjohnson/clock"

	"go.viam.com/posest/utils/matrix"
)

// Sampler draws minimal samples of correspondence indices.
type Sampler interface {
	// Sample fills dst with pairwise distinct indices in [0, n).
	Sample(dst []int, n int) error
}

type uniformSampler struct {
	src rand.Source
}

// NewUniformSampler returns a Sampler drawing uniformly without replacement from a PCG source seeded with seed.
// Equal seeds produce equal sample sequences.
func NewUniformSampler(seed uint64) Sampler {
	return &uniformSampler{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

func (s *uniformSampler) Sample(dst []int, n int) error {
	return matrix.SampleDistinctIntegers(dst, n, s.src)
}

// SeedFromClock derives a sampler seed from the current time of clk.
func SeedFromClock(clk clock.Clock) uint64 {
	return uint64(clk.Now().UnixNano())
}
