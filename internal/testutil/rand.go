package testutil

import (
	"math/rand/v2"

	"github.com/roach88/cortex/internal/som"
)

// DefaultSeed seeds fixtures that don't care about the exact draw.
const DefaultSeed = 42

// Rand returns a deterministic random source. With no argument it uses
// DefaultSeed.
//
// Every map built from the same seed and description starts from the same
// cells, so tests that train a graph are reproducible run to run.
func Rand(seed ...uint64) *rand.Rand {
	s := uint64(DefaultSeed)
	if len(seed) > 0 {
		s = seed[0]
	}
	return som.NewRand(s)
}
