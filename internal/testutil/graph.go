// Package testutil holds graph fixtures and helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/vector"
)

// Node ids used by the fixtures.
const (
	InputID = 1
	LowerID = 2
	UpperID = 3
	LeftID  = 2
	RightID = 3
	TopID   = 4
)

// GridSize is the side of every fixture section grid.
const GridSize = 4

// ChainGraph returns in(1) -> lower(2) -> upper(3).
//
// in is a 1-dim channel. lower integrates depth inputs in a single slot,
// so its dimension is depth. upper takes lower's coordinate (2-dim).
// lower sits at x=0 and upper at x=GridSize; both are GridSize square and
// bound to outputs "bottom" and "top".
func ChainGraph(depth, trainIters int) *ir.GraphSpec {
	return &ir.GraphSpec{
		Name: "chain",
		Inputs: []ir.InputSpec{
			{ID: InputID, Name: "in", Dim: 1, Connections: []ir.Connection{{Target: LowerID, Slot: 1}}},
		},
		Sections: []ir.SectionSpec{
			{
				ID: LowerID, Name: "lower", Dim: depth,
				X: 0, Y: 0, Rows: GridSize, Cols: GridSize,
				TrainIters: trainIters, Mode: ir.ModePropagate,
				Slots:       []ir.SlotSpec{{Slot: 1, Depth: depth, Slices: 1}},
				Connections: []ir.Connection{{Target: UpperID, Slot: 1}},
			},
			{
				ID: UpperID, Name: "upper", Dim: 2,
				X: GridSize, Y: 0, Rows: GridSize, Cols: GridSize,
				TrainIters: trainIters, Mode: ir.ModeConsume,
				Slots: []ir.SlotSpec{{Slot: 1, Depth: 1, Slices: 1}},
			},
		},
		Order: []int{LowerID, UpperID},
		Outputs: []ir.OutputChannel{
			{ID: 1, Name: "bottom"},
			{ID: 2, Name: "top"},
		},
		Bindings: []ir.OutputBinding{
			{Section: LowerID, Output: 1},
			{Section: UpperID, Output: 2},
		},
		FanIn: []ir.FanInTable{
			{Root: LowerID, Counts: []ir.FanInCount{{ID: LowerID, Count: 1}, {ID: InputID, Count: 1}}},
			{Root: UpperID, Counts: []ir.FanInCount{{ID: UpperID, Count: 1}, {ID: LowerID, Count: 1}, {ID: InputID, Count: 1}}},
		},
	}
}

// DiamondGraph returns in(1) feeding left(2) and right(3), which both
// feed top(4). Resolving top reaches in along two paths.
//
// left and right sit side by side at y=0; top sits below them at
// y=GridSize. All grids are GridSize square.
func DiamondGraph(trainIters int) *ir.GraphSpec {
	leaf := func(id int, name string, x int) ir.SectionSpec {
		return ir.SectionSpec{
			ID: id, Name: name, Dim: 1,
			X: x, Y: 0, Rows: GridSize, Cols: GridSize,
			TrainIters: trainIters, Mode: ir.ModePropagate,
			Slots:       []ir.SlotSpec{{Slot: 1, Depth: 1, Slices: 1}},
			Connections: []ir.Connection{{Target: TopID, Slot: id - 1}},
		}
	}
	return &ir.GraphSpec{
		Name: "diamond",
		Inputs: []ir.InputSpec{
			{ID: InputID, Name: "in", Dim: 1, Connections: []ir.Connection{
				{Target: LeftID, Slot: 1},
				{Target: RightID, Slot: 1},
			}},
		},
		Sections: []ir.SectionSpec{
			leaf(LeftID, "left", 0),
			leaf(RightID, "right", GridSize),
			{
				ID: TopID, Name: "top", Dim: 4,
				X: 0, Y: GridSize, Rows: GridSize, Cols: GridSize,
				TrainIters: trainIters, Mode: ir.ModeConsume,
				Slots: []ir.SlotSpec{{Slot: 1, Depth: 1, Slices: 1}, {Slot: 2, Depth: 1, Slices: 1}},
			},
		},
		Order:    []int{LeftID, RightID, TopID},
		Outputs:  []ir.OutputChannel{{ID: 1, Name: "top"}},
		Bindings: []ir.OutputBinding{{Section: TopID, Output: 1}},
		FanIn: []ir.FanInTable{
			{Root: TopID, Counts: []ir.FanInCount{
				{ID: TopID, Count: 1},
				{ID: LeftID, Count: 1},
				{ID: RightID, Count: 1},
				{ID: InputID, Count: 2},
			}},
		},
	}
}

// SetCell overwrites one cell of a map.
func SetCell(t *testing.T, m *som.Map, row, col int, vals ...float64) {
	t.Helper()
	require.NoError(t, m.Cell(row, col).CopyFrom(vector.Of(vals...)))
}

// Scalars wraps each value as a single 1-dim input vector list, the shape
// Process expects for the single-input fixtures.
func Scalars(vals ...float64) [][]vector.Vector {
	out := make([][]vector.Vector, len(vals))
	for i, v := range vals {
		out[i] = []vector.Vector{vector.Of(v)}
	}
	return out
}
