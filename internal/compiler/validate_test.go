package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/testutil"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_Fixtures(t *testing.T) {
	assert.Empty(t, Validate(testutil.ChainGraph(1, 10)))
	assert.Empty(t, Validate(testutil.ChainGraph(3, 10)))
	assert.Empty(t, Validate(testutil.DiamondGraph(10)))
}

func TestValidate_Nil(t *testing.T) {
	errs := Validate(nil)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrInvalidSize, errs[0].Code)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *ir.GraphSpec)
		want   string
	}{
		{
			name:   "zero rows",
			mutate: func(g *ir.GraphSpec) { g.Sections[0].Rows = 0 },
			want:   ErrInvalidSize,
		},
		{
			name:   "train_iters below two",
			mutate: func(g *ir.GraphSpec) { g.Sections[1].TrainIters = 1 },
			want:   ErrInvalidSize,
		},
		{
			name:   "zero input dim",
			mutate: func(g *ir.GraphSpec) { g.Inputs[0].Dim = 0 },
			want:   ErrInvalidSize,
		},
		{
			name:   "duplicate node id",
			mutate: func(g *ir.GraphSpec) { g.Inputs[0].ID = testutil.UpperID },
			want:   ErrDuplicateID,
		},
		{
			name: "duplicate output id",
			mutate: func(g *ir.GraphSpec) {
				g.Outputs = append(g.Outputs, ir.OutputChannel{ID: 1, Name: "again"})
			},
			want: ErrDuplicateID,
		},
		{
			name:   "unknown target section",
			mutate: func(g *ir.GraphSpec) { g.Sections[0].Connections[0].Target = 99 },
			want:   ErrUnknownTarget,
		},
		{
			name:   "unknown target slot",
			mutate: func(g *ir.GraphSpec) { g.Sections[0].Connections[0].Slot = 7 },
			want:   ErrUnknownTarget,
		},
		{
			name: "slot fed twice",
			mutate: func(g *ir.GraphSpec) {
				g.Inputs[0].Connections = append(g.Inputs[0].Connections, ir.Connection{Target: testutil.UpperID, Slot: 1})
			},
			want: ErrSlotFeed,
		},
		{
			name:   "dim mismatch",
			mutate: func(g *ir.GraphSpec) { g.Sections[1].Dim = 3 },
			want:   ErrDimMismatch,
		},
		{
			name:   "order misses a section",
			mutate: func(g *ir.GraphSpec) { g.Order = []int{testutil.LowerID} },
			want:   ErrOrderMembership,
		},
		{
			name:   "order lists an input",
			mutate: func(g *ir.GraphSpec) { g.Order = append(g.Order, testutil.InputID) },
			want:   ErrOrderMembership,
		},
		{
			name: "order repeats a section",
			mutate: func(g *ir.GraphSpec) {
				g.Order = append(g.Order, testutil.UpperID)
			},
			want: ErrOrderMembership,
		},
		{
			name:   "order not topological",
			mutate: func(g *ir.GraphSpec) { g.Order = []int{testutil.UpperID, testutil.LowerID} },
			want:   ErrOrderTopology,
		},
		{
			name:   "binding to unknown section",
			mutate: func(g *ir.GraphSpec) { g.Bindings[0].Section = 42 },
			want:   ErrUnknownBinding,
		},
		{
			name:   "binding to unknown output",
			mutate: func(g *ir.GraphSpec) { g.Bindings[0].Output = 42 },
			want:   ErrUnknownBinding,
		},
		{
			name: "fan-in unknown node",
			mutate: func(g *ir.GraphSpec) {
				g.FanIn[0].Counts = append(g.FanIn[0].Counts, ir.FanInCount{ID: 77, Count: 1})
			},
			want: ErrFanInUnknownNode,
		},
		{
			name:   "fan-in root not a section",
			mutate: func(g *ir.GraphSpec) { g.FanIn[0].Root = 50 },
			want:   ErrFanInUnknownNode,
		},
		{
			name:   "fan-in root missing itself",
			mutate: func(g *ir.GraphSpec) { g.FanIn[1].Counts = g.FanIn[1].Counts[1:] },
			want:   ErrFanInMissingRoot,
		},
		{
			name:   "fan-in root counted twice",
			mutate: func(g *ir.GraphSpec) { g.FanIn[0].Counts[0].Count = 2 },
			want:   ErrFanInMissingRoot,
		},
		{
			name:   "fan-in overcount",
			mutate: func(g *ir.GraphSpec) { g.FanIn[1].Counts[2].Count = 2 },
			want:   ErrFanInCountInvalid,
		},
		{
			name:   "fan-in missing ancestor",
			mutate: func(g *ir.GraphSpec) { g.FanIn[1].Counts = g.FanIn[1].Counts[:2] },
			want:   ErrFanInCountInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testutil.ChainGraph(1, 10)
			tt.mutate(g)
			assert.Contains(t, codes(Validate(g)), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	g := testutil.ChainGraph(1, 10)
	g.Sections[0].Rows = 0
	g.Bindings[0].Output = 42
	g.Order = []int{testutil.LowerID}

	got := codes(Validate(g))
	assert.Contains(t, got, ErrInvalidSize)
	assert.Contains(t, got, ErrUnknownBinding)
	assert.Contains(t, got, ErrOrderMembership)
}

func TestValidate_SkipsCountsWhenWiringIsBroken(t *testing.T) {
	g := testutil.ChainGraph(1, 10)
	g.Sections[0].Connections = nil // upper's slot is now unfed

	got := codes(Validate(g))
	assert.Contains(t, got, ErrSlotFeed)
	assert.NotContains(t, got, ErrFanInCountInvalid)
}

func TestValidate_Cycle(t *testing.T) {
	g := testutil.ChainGraph(1, 10)
	// upper feeds back into lower through a second slot.
	g.Sections[0].Slots = append(g.Sections[0].Slots, ir.SlotSpec{Slot: 2, Depth: 1, Slices: 1})
	g.Sections[0].Dim = 3
	g.Sections[1].Connections = []ir.Connection{{Target: testutil.LowerID, Slot: 2}}

	errs := Validate(g)
	got := codes(errs)
	assert.Contains(t, got, ErrWiringCycle)
	assert.NotContains(t, got, ErrFanInCountInvalid)

	for _, e := range errs {
		if e.Code == ErrWiringCycle {
			assert.Contains(t, e.Message, "lower -> upper -> lower")
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "order", Message: "bad", Code: ErrOrderTopology}
	assert.Equal(t, "[E106] order: bad", e.Error())

	e.Line = 12
	assert.Equal(t, "[E106] line 12: order: bad", e.Error())
}

func TestExpectedFanIn(t *testing.T) {
	diamond := testutil.DiamondGraph(10)
	assert.Equal(t, map[int]int{
		testutil.TopID:   1,
		testutil.LeftID:  1,
		testutil.RightID: 1,
		testutil.InputID: 2,
	}, ExpectedFanIn(diamond, testutil.TopID))

	assert.Equal(t, map[int]int{
		testutil.LeftID:  1,
		testutil.InputID: 1,
	}, ExpectedFanIn(diamond, testutil.LeftID))
}
