package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/testutil"
	"github.com/roach88/cortex/internal/vector"
)

// wireChain points upper cell (1,3) at lower cell (2,1) and stores vals
// there.
func wireChain(t *testing.T, c *Cortex, vals ...float64) {
	t.Helper()
	upper, _ := c.Map(testutil.UpperID)
	lower, _ := c.Map(testutil.LowerID)
	testutil.SetCell(t, upper, 1, 3, 0.5, 0.25)
	testutil.SetCell(t, lower, 2, 1, vals...)
}

// =============================================================================
// Chains
// =============================================================================

func TestResolve_Chain(t *testing.T) {
	c := buildChain(t, 1, 10)
	wireChain(t, c, 0.7)

	table, ok, err := c.Resolve(1, testutil.GridSize+3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, table, 1)

	in := table[0]
	assert.Equal(t, testutil.InputID, in.ID)
	assert.Equal(t, "in", in.Name)
	assert.True(t, in.Active)
	assert.Equal(t, []vector.Vector{vector.Of(0.7)}, in.TimeSteps)
}

func TestResolve_MostRecentStepFirst(t *testing.T) {
	c := buildChain(t, 2, 10)
	// The abstraction stores the older scalar first.
	wireChain(t, c, 0.1, 0.9)

	table, ok, err := c.Resolve(1, testutil.GridSize+3)
	require.NoError(t, err)
	require.True(t, ok)

	in, found := table.Lookup("in")
	require.True(t, found)
	assert.Equal(t, []vector.Vector{vector.Of(0.9), vector.Of(0.1)}, in.TimeSteps)
}

func TestResolve_FromLowerSection(t *testing.T) {
	c := buildChain(t, 1, 10)
	lower, _ := c.Map(testutil.LowerID)
	testutil.SetCell(t, lower, 3, 0, 0.25)

	table, ok, err := c.Resolve(3, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []vector.Vector{vector.Of(0.25)}, table[0].TimeSteps)
}

func TestResolve_OutsideEverySection(t *testing.T) {
	c := buildChain(t, 1, 10)

	table, ok, err := c.Resolve(100, 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, table)
}

func TestResolve_DoesNotAliasMaps(t *testing.T) {
	c := buildChain(t, 1, 10)
	wireChain(t, c, 0.7)

	table, _, err := c.Resolve(1, testutil.GridSize+3)
	require.NoError(t, err)
	table[0].TimeSteps[0][0] = -1

	lower, _ := c.Map(testutil.LowerID)
	assert.Equal(t, 0.7, lower.Cell(2, 1)[0])
}

func TestResolve_Repeatable(t *testing.T) {
	c := buildChain(t, 1, 10)
	wireChain(t, c, 0.7)

	first, _, err := c.Resolve(1, testutil.GridSize+3)
	require.NoError(t, err)
	second, _, err := c.Resolve(1, testutil.GridSize+3)
	require.NoError(t, err)
	assert.Equal(t, first, second, "scratch state is reset between calls")
}

// =============================================================================
// Fan-in
// =============================================================================

func TestResolve_DiamondMergesPaths(t *testing.T) {
	c, err := Build(testutil.DiamondGraph(10), testutil.Rand())
	require.NoError(t, err)

	top, _ := c.Map(testutil.TopID)
	left, _ := c.Map(testutil.LeftID)
	right, _ := c.Map(testutil.RightID)
	testutil.SetCell(t, top, 0, 0, 0, 0, 0.5, 0.5)
	testutil.SetCell(t, left, 0, 0, 0.2)
	testutil.SetCell(t, right, 2, 2, 0.6)

	table, ok, err := c.Resolve(testutil.GridSize, 0)
	require.NoError(t, err)
	require.True(t, ok)

	in := table[0]
	require.True(t, in.Active)
	require.Len(t, in.TimeSteps, 1)
	assert.InDelta(t, 0.4, in.TimeSteps[0][0], 1e-12)
}

func TestResolve_MissingFanInTable(t *testing.T) {
	g := testutil.ChainGraph(1, 10)
	g.FanIn = g.FanIn[1:] // drop lower's table
	c, err := Build(g, testutil.Rand())
	require.NoError(t, err)

	_, _, err = c.Resolve(0, 0)
	assert.Equal(t, ErrCodeMissingFanIn, errCode(t, err))
	assert.True(t, IsConfigError(err))
}

func TestResolve_MissingFanInEntry(t *testing.T) {
	g := testutil.ChainGraph(1, 10)
	g.FanIn[1].Counts = g.FanIn[1].Counts[:2] // upper's table without the input
	c, err := Build(g, testutil.Rand())
	require.NoError(t, err)

	_, _, err = c.Resolve(0, testutil.GridSize)
	assert.Equal(t, ErrCodeMissingFanIn, errCode(t, err))
}

func TestResolve_RootMustListItself(t *testing.T) {
	g := testutil.ChainGraph(1, 10)
	g.FanIn[0].Counts = g.FanIn[0].Counts[1:]
	c, err := Build(g, testutil.Rand())
	require.NoError(t, err)

	_, _, err = c.Resolve(0, 0)
	assert.Equal(t, ErrCodeMissingFanIn, errCode(t, err))
}

func TestResolve_StallsOnOvercountedFanIn(t *testing.T) {
	g := testutil.DiamondGraph(10)
	g.FanIn[0].Counts[3].Count = 3 // in is reached along two paths, not three
	c, err := Build(g, testutil.Rand())
	require.NoError(t, err)

	_, _, err = c.Resolve(testutil.GridSize, 0)
	assert.Equal(t, ErrCodeResolveStalled, errCode(t, err))
	assert.True(t, IsInvariantError(err))

	// A failed resolve leaves no state behind.
	g.FanIn[0].Counts[3].Count = 2
	c2, err := Build(g, testutil.Rand())
	require.NoError(t, err)
	_, ok, err := c2.Resolve(testutil.GridSize, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolve_CycleIsInvariantViolation(t *testing.T) {
	// a and b feed each other; no input reaches them.
	g := &ir.GraphSpec{
		Name: "loop",
		Sections: []ir.SectionSpec{
			{
				ID: 1, Name: "a", Dim: 2, Rows: 2, Cols: 2, TrainIters: 2,
				Slots:       []ir.SlotSpec{{Slot: 1, Depth: 1, Slices: 1}},
				Connections: []ir.Connection{{Target: 2, Slot: 1}},
			},
			{
				ID: 2, Name: "b", Dim: 2, X: 2, Rows: 2, Cols: 2, TrainIters: 2,
				Slots:       []ir.SlotSpec{{Slot: 1, Depth: 1, Slices: 1}},
				Connections: []ir.Connection{{Target: 1, Slot: 1}},
			},
		},
		Order: []int{1, 2},
		FanIn: []ir.FanInTable{
			{Root: 1, Counts: []ir.FanInCount{{ID: 1, Count: 1}, {ID: 2, Count: 1}}},
		},
	}
	c, err := Build(g, testutil.Rand())
	require.NoError(t, err)

	_, _, err = c.Resolve(0, 0)
	assert.Equal(t, ErrCodeInvariantViolated, errCode(t, err))
}

// =============================================================================
// Quota
// =============================================================================

func TestResolve_PassQuota(t *testing.T) {
	// Resolving upper takes two passes: upper, then lower.
	c := buildChain(t, 1, 10, WithMaxPasses(1))
	wireChain(t, c, 0.7)

	_, _, err := c.Resolve(1, testutil.GridSize+3)
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Equal(t, ErrCodeQuotaExceeded, errCode(t, err))

	// One pass is enough for lower.
	_, ok, err := c.Resolve(0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

// =============================================================================
// Round trip through training
// =============================================================================

func TestResolve_AfterTraining(t *testing.T) {
	// lower trains for trainIters ticks, then feeds upper for as many more.
	const trainIters = 400
	c := buildChain(t, 1, trainIters)
	values := []float64{0.1, 0.9}

	for i := 0; !c.Trained(); i++ {
		require.Less(t, i, 4*trainIters, "graph never finished training")
		_, err := c.Process(testutil.Scalars(values[i%len(values)])[0], som.RequestLearn)
		require.NoError(t, err)
	}

	for _, in := range values {
		out, err := c.Process(testutil.Scalars(in)[0], som.RequestClassify)
		require.NoError(t, err)

		for _, name := range []string{"bottom", "top"} {
			o, _ := out.Lookup(name)
			require.True(t, o.Active, "%s inactive for %.1f", name, in)

			table, ok, err := c.Resolve(o.GlobalRow(), o.GlobalCol())
			require.NoError(t, err)
			require.True(t, ok)
			require.True(t, table[0].Active)
			require.Len(t, table[0].TimeSteps, 1)
			require.Equal(t, 1, table[0].TimeSteps[0].Dim())
			assert.InDelta(t, in, table[0].TimeSteps[0][0], 0.2, "resolving %s for %.1f", name, in)
		}
	}
}

func TestCellAt_TruncatesTowardOrigin(t *testing.T) {
	c := buildChain(t, 1, 10)
	lower, _ := c.Map(testutil.LowerID)
	testutil.SetCell(t, lower, 0, 0, 0.11)
	testutil.SetCell(t, lower, 1, 0, 0.22)
	testutil.SetCell(t, lower, 3, 3, 0.44)
	n := &c.nodes[c.index[testutil.LowerID]]

	tests := []struct {
		name  string
		coord vector.Vector
		want  float64
	}{
		{"exact boundary", vector.Of(0.25, 0), 0.22},
		{"just short of boundary", vector.Of(0.249, 0), 0.11},
		{"far edge clamps", vector.Of(1, 1), 0.44},
		{"negative clamps", vector.Of(-0.1, -0.1), 0.11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, vector.Of(tt.want), c.cellAt(n, tt.coord))
		})
	}
}
