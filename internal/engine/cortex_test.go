package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/testutil"
)

func buildChain(t *testing.T, depth, trainIters int, opts ...Option) *Cortex {
	t.Helper()
	c, err := Build(testutil.ChainGraph(depth, trainIters), testutil.Rand(), opts...)
	require.NoError(t, err)
	return c
}

func errCode(t *testing.T, err error) RuntimeErrorCode {
	t.Helper()
	var re *RuntimeError
	require.True(t, errors.As(err, &re), "expected *RuntimeError, got %T: %v", err, err)
	return re.Code
}

// =============================================================================
// Build
// =============================================================================

func TestBuild_Chain(t *testing.T) {
	c := buildChain(t, 1, 10)

	assert.Equal(t, int64(0), c.Tick())
	assert.False(t, c.Trained())

	lower, ok := c.Map(testutil.LowerID)
	require.True(t, ok)
	assert.Equal(t, 1, lower.Dim())
	assert.Equal(t, som.Learning, lower.Mode())

	upper, ok := c.Map(testutil.UpperID)
	require.True(t, ok)
	assert.Equal(t, 2, upper.Dim())

	_, ok = c.Map(testutil.InputID)
	assert.False(t, ok, "inputs have no map")
	_, ok = c.Map(99)
	assert.False(t, ok)
}

func TestBuild_SameSeedSameMaps(t *testing.T) {
	a, err := Build(testutil.ChainGraph(1, 10), testutil.Rand(7))
	require.NoError(t, err)
	b, err := Build(testutil.ChainGraph(1, 10), testutil.Rand(7))
	require.NoError(t, err)

	ma, _ := a.Map(testutil.UpperID)
	mb, _ := b.Map(testutil.UpperID)
	for r := 0; r < ma.Rows(); r++ {
		for col := 0; col < ma.Cols(); col++ {
			assert.Equal(t, ma.Cell(r, col), mb.Cell(r, col))
		}
	}
}

func TestBuild_DoesNotAliasDescription(t *testing.T) {
	g := testutil.ChainGraph(1, 10)
	c, err := Build(g, testutil.Rand())
	require.NoError(t, err)

	g.Name = "changed"
	assert.Equal(t, "chain", c.Spec().Name)
}

func TestBuild_ConfigFaults(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *ir.GraphSpec)
		code   RuntimeErrorCode
	}{
		{
			name:   "duplicate id",
			mutate: func(g *ir.GraphSpec) { g.Sections[1].ID = testutil.LowerID },
			code:   ErrCodeConfigInvalid,
		},
		{
			name:   "unknown connection target",
			mutate: func(g *ir.GraphSpec) { g.Inputs[0].Connections[0].Target = 42 },
			code:   ErrCodeUnknownNode,
		},
		{
			name:   "unknown slot",
			mutate: func(g *ir.GraphSpec) { g.Inputs[0].Connections[0].Slot = 9 },
			code:   ErrCodeUnknownNode,
		},
		{
			name: "slot fed twice",
			mutate: func(g *ir.GraphSpec) {
				g.Inputs[0].Connections = append(g.Inputs[0].Connections, ir.Connection{Target: testutil.UpperID, Slot: 1})
			},
			code: ErrCodeConfigInvalid,
		},
		{
			name:   "slot without source",
			mutate: func(g *ir.GraphSpec) { g.Sections[0].Connections = nil },
			code:   ErrCodeConfigInvalid,
		},
		{
			name:   "connection into an input",
			mutate: func(g *ir.GraphSpec) { g.Sections[0].Connections[0].Target = testutil.InputID },
			code:   ErrCodeConfigInvalid,
		},
		{
			name:   "section dimension mismatch",
			mutate: func(g *ir.GraphSpec) { g.Sections[0].Dim = 5 },
			code:   ErrCodeDimensionMismatch,
		},
		{
			name:   "non-positive input dimension",
			mutate: func(g *ir.GraphSpec) { g.Inputs[0].Dim = 0 },
			code:   ErrCodeConfigInvalid,
		},
		{
			name:   "empty grid",
			mutate: func(g *ir.GraphSpec) { g.Sections[0].Rows = 0 },
			code:   ErrCodeConfigInvalid,
		},
		{
			name:   "order references unknown node",
			mutate: func(g *ir.GraphSpec) { g.Order = append(g.Order, 77) },
			code:   ErrCodeUnknownNode,
		},
		{
			name:   "order lists an input",
			mutate: func(g *ir.GraphSpec) { g.Order = append(g.Order, testutil.InputID) },
			code:   ErrCodeConfigInvalid,
		},
		{
			name:   "order repeats a section",
			mutate: func(g *ir.GraphSpec) { g.Order = append(g.Order, testutil.LowerID) },
			code:   ErrCodeConfigInvalid,
		},
		{
			name:   "binding to unknown output",
			mutate: func(g *ir.GraphSpec) { g.Bindings[0].Output = 9 },
			code:   ErrCodeUnknownNode,
		},
		{
			name:   "binding from unknown section",
			mutate: func(g *ir.GraphSpec) { g.Bindings[0].Section = 9 },
			code:   ErrCodeUnknownNode,
		},
		{
			name:   "fan-in lists unknown node",
			mutate: func(g *ir.GraphSpec) { g.FanIn[0].Counts[1].ID = 55 },
			code:   ErrCodeUnknownNode,
		},
		{
			name:   "fan-in count not positive",
			mutate: func(g *ir.GraphSpec) { g.FanIn[0].Counts[1].Count = 0 },
			code:   ErrCodeConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testutil.ChainGraph(1, 10)
			tt.mutate(g)

			_, err := Build(g, testutil.Rand())
			require.Error(t, err)
			assert.Equal(t, tt.code, errCode(t, err))
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestBuild_NilArguments(t *testing.T) {
	_, err := Build(nil, testutil.Rand())
	assert.True(t, IsConfigError(err))

	_, err = Build(testutil.ChainGraph(1, 10), nil)
	assert.True(t, IsConfigError(err))
}

// =============================================================================
// Locate
// =============================================================================

func TestCortex_Locate(t *testing.T) {
	c := buildChain(t, 1, 10)

	tests := []struct {
		name           string
		row, col       int
		id, lrow, lcol int
		ok             bool
	}{
		{name: "lower origin", row: 0, col: 0, id: testutil.LowerID, ok: true},
		{name: "lower far corner", row: 3, col: 3, id: testutil.LowerID, lrow: 3, lcol: 3, ok: true},
		{name: "upper", row: 2, col: 5, id: testutil.UpperID, lrow: 2, lcol: 1, ok: true},
		{name: "below every section", row: 4, col: 0},
		{name: "right of every section", row: 0, col: 8},
		{name: "negative", row: -1, col: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, lr, lc, ok := c.Locate(tt.row, tt.col)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.id, id)
				assert.Equal(t, tt.lrow, lr)
				assert.Equal(t, tt.lcol, lc)
			}
		})
	}
}

// =============================================================================
// Destroy
// =============================================================================

func TestCortex_Destroy(t *testing.T) {
	c := buildChain(t, 1, 10)
	c.Destroy()

	_, err := c.Process(testutil.Scalars(0.5)[0], som.RequestLearn)
	assert.ErrorIs(t, err, ErrDestroyed)

	_, _, err = c.Resolve(0, 0)
	assert.ErrorIs(t, err, ErrDestroyed)

	_, ok := c.Map(testutil.LowerID)
	assert.False(t, ok)
	assert.False(t, c.Trained())

	_, _, _, ok = c.Locate(0, 0)
	assert.False(t, ok)
}
