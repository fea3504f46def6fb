package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
)

func TestChainGraph_Dimensions(t *testing.T) {
	g := ChainGraph(3, 10)

	lower, ok := g.Section(LowerID)
	require.True(t, ok)
	assert.Equal(t, 3, lower.Dim, "lower integrates depth scalars")

	upper, ok := g.Section(UpperID)
	require.True(t, ok)
	assert.Equal(t, 2, upper.Dim, "upper takes a coordinate")
	assert.Equal(t, ir.ModeConsume, upper.Mode)
}

func TestDiamondGraph_FanIn(t *testing.T) {
	g := DiamondGraph(10)

	f, ok := g.FanInFor(TopID)
	require.True(t, ok)

	counts := make(map[int]int)
	for _, c := range f.Counts {
		counts[c.ID] = c.Count
	}
	assert.Equal(t, map[int]int{TopID: 1, LeftID: 1, RightID: 1, InputID: 2}, counts)
}

func TestRand_Deterministic(t *testing.T) {
	a, b := Rand(), Rand(DefaultSeed)
	for range 10 {
		assert.Equal(t, a.Float64(), b.Float64())
	}

	assert.NotEqual(t, Rand(1).Uint64(), Rand(2).Uint64())
}

func TestSetCell(t *testing.T) {
	m, err := som.New(som.Desc{Dim: 2, TrainIters: 2, Rows: 2, Cols: 2}, Rand())
	require.NoError(t, err)

	SetCell(t, m, 1, 0, 0.25, 0.75)
	assert.Equal(t, []float64{0.25, 0.75}, []float64(m.Cell(1, 0)))
}
