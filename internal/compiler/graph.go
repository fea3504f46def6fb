package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/cortex/internal/ir"
)

// GraphPath is the top-level field a graph file declares.
const GraphPath = "graph"

// CompileGraph parses a CUE value into a GraphSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the graph struct itself, e.g.:
//
//	graph: {
//		name: "chain"
//		inputs: sensor: {id: 1, dim: 1, connect: [{to: "lower", slot: 1}]}
//		sections: {
//			lower: {
//				id: 2, dim: 1, rows: 4, cols: 4, train_iters: 100
//				slots: [{slot: 1, depth: 1}]
//				connect: [{to: "upper", slot: 1}]
//			}
//			upper: {
//				id: 3, dim: 2, x: 4, rows: 4, cols: 4, train_iters: 100
//				mode: "consume"
//				slots: [{slot: 1, depth: 1}]
//			}
//		}
//		order: ["lower", "upper"]
//		outputs: top: {id: 1, from: "upper"}
//		fan_in: upper: {upper: 1, lower: 1, sensor: 1}
//	}
//
// Nodes are referenced by name; inputs and sections share one namespace.
// Declaration order is CUE field order. Counts, sizes and ids must be
// integers.
func CompileGraph(v cue.Value) (*ir.GraphSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.GraphSpec{}

	name, err := optionalString(v, "name")
	if err != nil {
		return nil, err
	}
	spec.Name = name
	if spec.Name == "" {
		labels := v.Path().Selectors()
		if len(labels) > 0 {
			spec.Name = labels[len(labels)-1].String()
		}
	}

	c := &graphCompiler{ids: make(map[string]int)}

	// Pass 1: declare every node so connections may reference forward.
	inputs, err := c.fields(v, "inputs")
	if err != nil {
		return nil, err
	}
	sections, err := c.fields(v, "sections")
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, &CompileError{Field: "sections", Message: "at least one section is required", Pos: v.Pos()}
	}
	for _, f := range append(append([]field(nil), inputs...), sections...) {
		if err := c.declare(f); err != nil {
			return nil, err
		}
	}

	// Pass 2: bodies.
	for _, f := range inputs {
		in, err := c.input(f)
		if err != nil {
			return nil, err
		}
		spec.Inputs = append(spec.Inputs, in)
	}
	for _, f := range sections {
		s, err := c.section(f)
		if err != nil {
			return nil, err
		}
		spec.Sections = append(spec.Sections, s)
	}

	spec.Order, err = c.order(v, sections)
	if err != nil {
		return nil, err
	}

	spec.Outputs, spec.Bindings, err = c.outputs(v)
	if err != nil {
		return nil, err
	}

	spec.FanIn, err = c.fanIn(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// LoadGraphFile reads a CUE file and compiles its top-level graph field.
func LoadGraphFile(path string) (*ir.GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return LoadGraphBytes(path, data)
}

// LoadGraphBytes compiles CUE source whose top-level graph field holds a
// graph description. filename is used in error positions.
func LoadGraphBytes(filename string, src []byte) (*ir.GraphSpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	g := v.LookupPath(cue.ParsePath(GraphPath))
	if !g.Exists() {
		return nil, &CompileError{Field: GraphPath, Message: "no graph declared", Pos: v.Pos()}
	}
	return CompileGraph(g)
}

// field is one labeled member of a CUE struct.
type field struct {
	label string
	value cue.Value
}

// graphCompiler carries the name -> id table between passes.
type graphCompiler struct {
	ids map[string]int
}

// fields lists the members of an optional struct field in declaration
// order.
func (c *graphCompiler) fields(v cue.Value, path string) ([]field, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []field
	for iter.Next() {
		out = append(out, field{label: iter.Label(), value: iter.Value()})
	}
	return out, nil
}

func (c *graphCompiler) declare(f field) error {
	if _, dup := c.ids[f.label]; dup {
		return &CompileError{
			Field:   f.label,
			Message: fmt.Sprintf("node name %q declared twice", f.label),
			Pos:     f.value.Pos(),
		}
	}
	id, err := requiredInt(f.value, "id")
	if err != nil {
		return err
	}
	c.ids[f.label] = id
	return nil
}

// resolve maps a node name to its id.
func (c *graphCompiler) resolve(v cue.Value, fieldName string) (int, error) {
	name, err := v.String()
	if err != nil {
		return 0, formatCUEError(err)
	}
	id, ok := c.ids[name]
	if !ok {
		return 0, &CompileError{
			Field:   fieldName,
			Message: fmt.Sprintf("unknown node %q", name),
			Pos:     v.Pos(),
		}
	}
	return id, nil
}

func (c *graphCompiler) input(f field) (ir.InputSpec, error) {
	in := ir.InputSpec{ID: c.ids[f.label], Name: f.label}

	dim, err := requiredInt(f.value, "dim")
	if err != nil {
		return in, err
	}
	in.Dim = dim

	in.Connections, err = c.connections(f.value)
	return in, err
}

func (c *graphCompiler) section(f field) (ir.SectionSpec, error) {
	s := ir.SectionSpec{ID: c.ids[f.label], Name: f.label}
	v := f.value

	var err error
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"dim", &s.Dim},
		{"rows", &s.Rows},
		{"cols", &s.Cols},
		{"train_iters", &s.TrainIters},
	} {
		if *p.dst, err = requiredInt(v, p.name); err != nil {
			return s, err
		}
	}
	if s.X, err = optionalInt(v, "x", 0); err != nil {
		return s, err
	}
	if s.Y, err = optionalInt(v, "y", 0); err != nil {
		return s, err
	}

	mode, err := optionalString(v, "mode")
	if err != nil {
		return s, err
	}
	switch ir.NodeMode(mode) {
	case "", ir.ModePropagate:
		s.Mode = ir.ModePropagate
	case ir.ModeConsume:
		s.Mode = ir.ModeConsume
	default:
		return s, &CompileError{
			Field:   "mode",
			Message: fmt.Sprintf("mode must be %q or %q, got %q", ir.ModePropagate, ir.ModeConsume, mode),
			Pos:     v.LookupPath(cue.ParsePath("mode")).Pos(),
		}
	}

	slotsVal := v.LookupPath(cue.ParsePath("slots"))
	if !slotsVal.Exists() {
		return s, &CompileError{Field: "slots", Message: fmt.Sprintf("section %q declares no slots", f.label), Pos: v.Pos()}
	}
	iter, err := slotsVal.List()
	if err != nil {
		return s, formatCUEError(err)
	}
	for iter.Next() {
		sv := iter.Value()
		var sl ir.SlotSpec
		if sl.Slot, err = requiredInt(sv, "slot"); err != nil {
			return s, err
		}
		if sl.Depth, err = optionalInt(sv, "depth", 1); err != nil {
			return s, err
		}
		if sl.Slices, err = optionalInt(sv, "slices", 1); err != nil {
			return s, err
		}
		s.Slots = append(s.Slots, sl)
	}

	s.Connections, err = c.connections(v)
	return s, err
}

func (c *graphCompiler) connections(v cue.Value) ([]ir.Connection, error) {
	cv := v.LookupPath(cue.ParsePath("connect"))
	if !cv.Exists() {
		return nil, nil
	}
	iter, err := cv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var conns []ir.Connection
	for iter.Next() {
		ev := iter.Value()
		toVal := ev.LookupPath(cue.ParsePath("to"))
		if !toVal.Exists() {
			return nil, &CompileError{Field: "connect.to", Message: "connection target is required", Pos: ev.Pos()}
		}
		target, err := c.resolve(toVal, "connect.to")
		if err != nil {
			return nil, err
		}
		slot, err := optionalInt(ev, "slot", 1)
		if err != nil {
			return nil, err
		}
		conns = append(conns, ir.Connection{Target: target, Slot: slot})
	}
	return conns, nil
}

// order compiles the execution order. Without an explicit order the
// sections run in declaration order.
func (c *graphCompiler) order(v cue.Value, sections []field) ([]int, error) {
	ov := v.LookupPath(cue.ParsePath("order"))
	if !ov.Exists() {
		order := make([]int, len(sections))
		for i, f := range sections {
			order[i] = c.ids[f.label]
		}
		return order, nil
	}
	iter, err := ov.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var order []int
	for iter.Next() {
		id, err := c.resolve(iter.Value(), "order")
		if err != nil {
			return nil, err
		}
		order = append(order, id)
	}
	return order, nil
}

func (c *graphCompiler) outputs(v cue.Value) ([]ir.OutputChannel, []ir.OutputBinding, error) {
	fs, err := c.fields(v, "outputs")
	if err != nil {
		return nil, nil, err
	}
	var (
		outs     []ir.OutputChannel
		bindings []ir.OutputBinding
	)
	for _, f := range fs {
		id, err := requiredInt(f.value, "id")
		if err != nil {
			return nil, nil, err
		}
		outs = append(outs, ir.OutputChannel{ID: id, Name: f.label})

		fromVal := f.value.LookupPath(cue.ParsePath("from"))
		if !fromVal.Exists() {
			continue // declared but unbound: always inactive
		}
		section, err := c.resolve(fromVal, "outputs.from")
		if err != nil {
			return nil, nil, err
		}
		bindings = append(bindings, ir.OutputBinding{Section: section, Output: id})
	}
	return outs, bindings, nil
}

func (c *graphCompiler) fanIn(v cue.Value) ([]ir.FanInTable, error) {
	fs, err := c.fields(v, "fan_in")
	if err != nil {
		return nil, err
	}
	var tables []ir.FanInTable
	for _, f := range fs {
		root, ok := c.ids[f.label]
		if !ok {
			return nil, &CompileError{
				Field:   "fan_in",
				Message: fmt.Sprintf("fan-in table for unknown node %q", f.label),
				Pos:     f.value.Pos(),
			}
		}
		table := ir.FanInTable{Root: root}

		iter, err := f.value.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name := iter.Label()
			id, ok := c.ids[name]
			if !ok {
				return nil, &CompileError{
					Field:   "fan_in." + f.label,
					Message: fmt.Sprintf("unknown node %q", name),
					Pos:     iter.Value().Pos(),
				}
			}
			count, err := intValue(iter.Value(), "fan_in."+f.label+"."+name)
			if err != nil {
				return nil, err
			}
			table.Counts = append(table.Counts, ir.FanInCount{ID: id, Count: count})
		}
		tables = append(tables, table)
	}
	return tables, nil
}

// =============================================================================
// Scalars
// =============================================================================

func requiredInt(v cue.Value, path string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return 0, &CompileError{Field: path, Message: path + " is required", Pos: v.Pos()}
	}
	return intValue(fv, path)
}

func optionalInt(v cue.Value, path string, def int) (int, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	return intValue(fv, path)
}

// intValue rejects floats explicitly; graph descriptions are float-free.
func intValue(v cue.Value, fieldName string) (int, error) {
	switch v.IncompleteKind() {
	case cue.FloatKind, cue.NumberKind:
		return 0, &CompileError{
			Field:   fieldName,
			Message: "float values are forbidden in graph descriptions - use int instead",
			Pos:     v.Pos(),
		}
	}
	n, err := v.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
