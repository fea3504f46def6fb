package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/cortex/internal/vector"
)

// InputResolution is the reconstructed history of one input channel.
type InputResolution struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`

	// TimeSteps holds native-dimension vectors, index 0 = most recent.
	TimeSteps []vector.Vector `json:"time_steps,omitempty"`
}

// ResolutionTable holds one entry per declared input channel, in
// declaration order.
type ResolutionTable []InputResolution

// Lookup returns the resolution of the input channel with the given name.
func (t ResolutionTable) Lookup(name string) (InputResolution, bool) {
	for _, r := range t {
		if r.Name == name {
			return r, true
		}
	}
	return InputResolution{}, false
}

// Resolve walks the graph backward from the global grid point (row, col)
// and reconstructs the input sequences that plausibly produced it.
//
// ok is false when the point lies outside every section. The queried
// section must have a fan-in table, and every node the wavefront reaches
// must be listed in it.
//
// Resolve mutates the Cortex's scratch wave table and is not reentrant.
func (c *Cortex) Resolve(row, col int) (table ResolutionTable, ok bool, err error) {
	if c.destroyed {
		return nil, false, ErrDestroyed
	}

	root, localRow, localCol, found := c.locate(row, col)
	if !found {
		return nil, false, nil
	}
	rn := &c.nodes[root]

	defer c.wave.reset()

	if err := c.loadFanIn(root); err != nil {
		return nil, false, err
	}

	c.wave.push(root, ViewPoint{vector.Of(
		float64(localRow)/float64(rn.vmap.Rows()),
		float64(localCol)/float64(rn.vmap.Cols()),
	)})

	quota := NewQuotaEnforcer(c.maxPasses)
	for {
		expanding, err := c.expanding()
		if err != nil {
			return nil, false, err
		}
		if !expanding {
			break
		}
		if err := quota.Check(rn.label()); err != nil {
			var pe *PassesExceededError
			if errors.As(err, &pe) {
				return nil, false, pe.RuntimeError()
			}
			return nil, false, err
		}

		merged, err := c.mergePass()
		if err != nil {
			return nil, false, err
		}
		expanded, err := c.expandPass()
		if err != nil {
			return nil, false, err
		}
		if merged+expanded == 0 {
			return nil, false, c.stalled()
		}
	}

	table, err = c.resolutionTable()
	if err != nil {
		return nil, false, err
	}

	slog.Debug("resolve complete",
		"root", rn.label(),
		"row", row,
		"col", col,
		"passes", quota.Current(),
	)
	return table, true, nil
}

// loadFanIn copies the root's fan-in table into the wave table.
func (c *Cortex) loadFanIn(root int) error {
	rn := &c.nodes[root]
	table, ok := c.spec.FanInFor(rn.id)
	if !ok {
		return newError(ErrCodeMissingFanIn, rn.label(), "no fan-in table for resolve root")
	}
	for _, cnt := range table.Counts {
		idx, ok := c.index[cnt.ID]
		if !ok {
			return newError(ErrCodeUnknownNode, rn.label(), "fan-in table lists unknown node %d", cnt.ID)
		}
		c.wave.fronts[idx].needed = cnt.Count
	}
	if c.wave.fronts[root].needed != 1 {
		return newError(ErrCodeMissingFanIn, rn.label(), "fan-in table must list its root with count 1")
	}
	return nil
}

// expanding reports whether another pass is needed: some section is
// active, or some input holds more than one view.
func (c *Cortex) expanding() (bool, error) {
	expanding := false
	for i := range c.wave.fronts {
		f := &c.wave.fronts[i]
		if !f.active {
			continue
		}
		if len(f.views) == 0 {
			return false, newError(ErrCodeInvariantViolated, c.nodes[i].label(), "active node has no views")
		}
		if c.nodes[i].kind == KindSection || len(f.views) > 1 {
			expanding = true
		}
	}
	return expanding, nil
}

// mergePass centroid-joins the views of every active node whose observed
// count has reached its fan-in count. Returns the number of merges.
func (c *Cortex) mergePass() (int, error) {
	merges := 0
	for i := range c.wave.fronts {
		f := &c.wave.fronts[i]
		if !f.active || f.observed != f.needed || len(f.views) <= 1 {
			continue
		}
		merged, err := CentroidJoin(f.views)
		if err != nil {
			return merges, &RuntimeError{
				Code:    ErrCodeInvariantViolated,
				Message: err.Error(),
				Node:    c.nodes[i].label(),
			}
		}
		f.views = []ViewPoint{merged}
		merges++
	}
	return merges, nil
}

// expandPass expands every active section holding a single merged view
// with its fan-in satisfied. The expandable set is fixed before any
// expansion so views pushed this pass are handled next pass.
func (c *Cortex) expandPass() (int, error) {
	var ready []int
	for i := range c.wave.fronts {
		f := &c.wave.fronts[i]
		if f.active && f.needed == f.observed && c.nodes[i].kind == KindSection && len(f.views) == 1 {
			ready = append(ready, i)
		}
	}
	for _, i := range ready {
		if err := c.expand(i); err != nil {
			return 0, err
		}
	}
	return len(ready), nil
}

// expand converts a section's single view of normalized coordinates into
// one view per receptor slot and pushes each to the slot's source node.
func (c *Cortex) expand(idx int) error {
	n := &c.nodes[idx]
	f := &c.wave.fronts[idx]
	if len(f.views) != 1 {
		return newError(ErrCodeInvariantViolated, n.label(), "expanding unmerged section with %d views", len(f.views))
	}
	view := f.views[0]

	slotDims := make([]int, len(n.receptor))
	for i := range n.receptor {
		slotDims[i] = n.receptor[i].dim()
	}

	perSlot := make([]ViewPoint, len(n.receptor))
	for step, coord := range view {
		if coord.Dim() != coordDim {
			return newError(ErrCodeInvariantViolated, n.label(),
				"view step %d has dimension %d, want a %d-dim coordinate", step, coord.Dim(), coordDim)
		}
		cell := c.cellAt(n, coord)

		slotVecs, err := vector.Unabstract(cell, slotDims)
		if err != nil {
			return &RuntimeError{Code: ErrCodeDimensionMismatch, Message: err.Error(), Node: n.label()}
		}
		for i, sv := range slotVecs {
			sl := &n.receptor[i]
			steps, err := vector.Unabstract(sv, repeat(sl.sourceDim, sl.depth))
			if err != nil {
				return &RuntimeError{Code: ErrCodeDimensionMismatch, Message: err.Error(), Node: n.label()}
			}
			// Abstractions are oldest first; views are newest first.
			for k := len(steps) - 1; k >= 0; k-- {
				perSlot[i] = append(perSlot[i], steps[k])
			}
		}
	}

	for i := range n.receptor {
		parent := n.receptor[i].source
		pn := &c.nodes[parent]
		if c.wave.guard.WouldReactivate(parent) {
			return newError(ErrCodeInvariantViolated, pn.label(), "expanded node would be reactivated by %s", n.label())
		}
		if c.wave.fronts[parent].needed == 0 {
			return newError(ErrCodeMissingFanIn, pn.label(), "node reachable from resolve root has no fan-in entry")
		}
		c.wave.push(parent, perSlot[i])
	}

	f.active = false
	f.views = nil
	c.wave.guard.Record(idx)
	return nil
}

// cellAt denormalizes a coordinate and returns a copy of the map cell
// there. Indices truncate toward the origin, so a learned coordinate that
// sits just below k/rows lands on cell k-1. Short training budgets leave
// such coordinates in upper maps.
// The small bias absorbs float error in k/rows*rows; the clamp guards the
// far edge.
func (c *Cortex) cellAt(n *node, coord vector.Vector) vector.Vector {
	rows, cols := n.vmap.Rows(), n.vmap.Cols()
	r := clamp(int(coord[0]*float64(rows)+denormBias), 0, rows-1)
	col := clamp(int(coord[1]*float64(cols)+denormBias), 0, cols-1)
	return n.vmap.Cell(r, col).Copy()
}

const denormBias = 1e-9

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// stalled builds the error for a pass that neither merged nor expanded.
func (c *Cortex) stalled() error {
	details := make(map[string]string)
	for i := range c.wave.fronts {
		f := &c.wave.fronts[i]
		if f.active {
			details[c.nodes[i].label()] = fmt.Sprintf("observed=%d needed=%d views=%d", f.observed, f.needed, len(f.views))
		}
	}
	return &RuntimeError{
		Code:    ErrCodeResolveStalled,
		Message: "resolve pass made no progress; fan-in counts disagree with the wiring",
		Details: details,
	}
}

// resolutionTable checks the terminal state and reports each input
// channel in declaration order.
func (c *Cortex) resolutionTable() (ResolutionTable, error) {
	for i := range c.wave.fronts {
		f := &c.wave.fronts[i]
		if !f.active {
			continue
		}
		if c.nodes[i].kind != KindInput {
			return nil, newError(ErrCodeInvariantViolated, c.nodes[i].label(), "non-input node active at termination")
		}
		if len(f.views) != 1 {
			return nil, newError(ErrCodeInvariantViolated, c.nodes[i].label(), "input holds %d views at termination", len(f.views))
		}
	}

	table := make(ResolutionTable, len(c.inputs))
	for i, idx := range c.inputs {
		n := &c.nodes[idx]
		f := &c.wave.fronts[idx]
		table[i] = InputResolution{ID: n.id, Name: n.name, Active: f.active}
		if f.active {
			steps := make([]vector.Vector, len(f.views[0]))
			for k, v := range f.views[0] {
				steps[k] = v.Copy()
			}
			table[i].TimeSteps = steps
		}
	}
	return table, nil
}
