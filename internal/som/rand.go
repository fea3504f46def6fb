package som

import "math/rand/v2"

// pcgStream is XORed into the seed to derive the PCG stream selector.
const pcgStream = 0x9e3779b97f4a7c15

// NewRand returns a deterministic random source for seed. Two maps built
// from sources with the same seed start from identical cells.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^pcgStream))
}
