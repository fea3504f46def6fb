package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/cortex/internal/intqueue"
	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
	"github.com/roach88/cortex/internal/vector"
)

// OutputDim is the dimension of a published output vector:
// (globalRow, globalCol, localRow, localCol, normRow, normCol).
const OutputDim = 6

// Output is one entry of an OutputTable.
type Output struct {
	ID     int           `json:"id"`
	Name   string        `json:"name"`
	Active bool          `json:"active"`
	Vector vector.Vector `json:"vector,omitempty"`
}

// OutputTable holds one entry per declared output channel, in declaration
// order.
type OutputTable []Output

// Lookup returns the output channel with the given name.
func (t OutputTable) Lookup(name string) (Output, bool) {
	for _, o := range t {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// GlobalRow returns the published global row. Only meaningful for an
// active output.
func (o Output) GlobalRow() int {
	return int(o.Vector[0])
}

// GlobalCol returns the published global column. Only meaningful for an
// active output.
func (o Output) GlobalCol() int {
	return int(o.Vector[1])
}

// Process runs one tick of the forward engine.
//
// inputs holds one vector per declared input channel, in declaration
// order; the Cortex takes ownership of them. Sections execute in the
// declared order. A section whose receptor slots are all ready learns
// (or, for RequestClassify, classifies) the concatenation of their
// abstractions; otherwise it is skipped this tick.
func (c *Cortex) Process(inputs []vector.Vector, req som.Request) (OutputTable, error) {
	if c.destroyed {
		return nil, ErrDestroyed
	}
	if len(inputs) != len(c.inputs) {
		return nil, &RuntimeError{
			Code:    ErrCodeDimensionMismatch,
			Message: fmt.Sprintf("expected %d input vectors, got %d", len(c.inputs), len(inputs)),
		}
	}
	for i, idx := range c.inputs {
		n := &c.nodes[idx]
		if inputs[i].Dim() != n.dim {
			return nil, &RuntimeError{
				Code:    ErrCodeDimensionMismatch,
				Message: fmt.Sprintf("input dimension %d, channel declares %d", inputs[i].Dim(), n.dim),
				Node:    n.label(),
			}
		}
	}

	tick := c.clock.Next()

	for i, idx := range c.inputs {
		for _, t := range c.nodes[idx].emitter {
			if err := c.enqueue(t, inputs[i].Copy()); err != nil {
				return nil, err
			}
		}
	}

	table := make(OutputTable, len(c.outputs))
	for i, o := range c.outputs {
		table[i] = Output{ID: o.ID, Name: o.Name}
	}

	for _, idx := range c.order {
		if err := c.execute(idx, req, table); err != nil {
			return nil, fmt.Errorf("tick %d: %w", tick, err)
		}
	}

	return table, nil
}

// execute runs a single section for the current tick.
func (c *Cortex) execute(idx int, req som.Request, table OutputTable) error {
	n := &c.nodes[idx]

	parts := make([]vector.Vector, len(n.receptor))
	for i := range n.receptor {
		q := n.receptor[i].queue
		if !q.Ready() {
			return nil
		}
		abs, err := q.Dequeue()
		if err != nil {
			return err
		}
		parts[i] = abs
	}

	match, err := n.vmap.Learn(vector.Abstract(parts...), req)
	if err != nil {
		return &RuntimeError{Code: ErrCodeDimensionMismatch, Message: err.Error(), Node: n.label()}
	}

	rows, cols := n.vmap.Rows(), n.vmap.Cols()
	normRow := float64(match.Row) / float64(rows)
	normCol := float64(match.Col) / float64(cols)

	if n.vmap.Mode() == som.Classifying && n.mode == ir.ModePropagate {
		coord := vector.Of(normRow, normCol)
		for _, t := range n.emitter {
			if err := c.enqueue(t, coord.Copy()); err != nil {
				return err
			}
		}
	}

	for _, p := range n.outputs {
		table[p].Active = true
		table[p].Vector = vector.Of(
			float64(n.y+match.Row),
			float64(n.x+match.Col),
			float64(match.Row),
			float64(match.Col),
			normRow,
			normCol,
		)
	}

	slog.Debug("section executed",
		"node", n.label(),
		"row", match.Row,
		"col", match.Col,
		"mode", n.vmap.Mode().String(),
		"iter", n.vmap.Iteration(),
	)
	return nil
}

// enqueue hands v to the target slot's integration queue.
func (c *Cortex) enqueue(t target, v vector.Vector) error {
	tn := &c.nodes[t.node]
	if err := tn.receptor[t.slot].queue.Enqueue(v); err != nil {
		var rr *intqueue.ReadyRegressionError
		if errors.As(err, &rr) {
			return &RuntimeError{
				Code:    ErrCodeInvariantViolated,
				Message: err.Error(),
				Node:    tn.label(),
				Details: map[string]string{"slot": fmt.Sprint(tn.receptor[t.slot].id)},
			}
		}
		return err
	}
	return nil
}
