package ir

import "sort"

// NodeMode controls whether a section forwards its classification.
type NodeMode string

const (
	// ModePropagate sections enqueue their best-match coordinate to every
	// emitter target once classifying.
	ModePropagate NodeMode = "propagate"

	// ModeConsume sections never forward; they may still publish to an
	// output channel.
	ModeConsume NodeMode = "consume"
)

// GraphSpec is the compiled description of a cortex graph.
//
// Input channels and sections share one id namespace. Order lists section
// ids in the sequence the forward engine executes them each tick and must
// be a topological order of the wiring.
type GraphSpec struct {
	Name     string          `json:"name"`
	Inputs   []InputSpec     `json:"inputs"`
	Sections []SectionSpec   `json:"sections"`
	Order    []int           `json:"order"`
	Outputs  []OutputChannel `json:"outputs"`
	Bindings []OutputBinding `json:"bindings"`
	FanIn    []FanInTable    `json:"fan_in"`
}

// InputSpec declares an external input channel.
type InputSpec struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Dim         int          `json:"dim"`
	Connections []Connection `json:"connections"`
}

// SectionSpec declares a section: a vector map plus its wiring.
//
// X and Y anchor the map in the global coordinate plane used by output
// vectors and reverse resolution: the section covers rows [Y, Y+Rows) and
// columns [X, X+Cols).
type SectionSpec struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Dim         int          `json:"dim"`
	X           int          `json:"x"`
	Y           int          `json:"y"`
	Rows        int          `json:"rows"`
	Cols        int          `json:"cols"`
	TrainIters  int          `json:"train_iters"`
	Mode        NodeMode     `json:"mode"`
	Slots       []SlotSpec   `json:"slots"`
	Connections []Connection `json:"connections"`
}

// SlotSpec declares one receptor slot: an integration queue of Depth
// vectors over Slices phases.
type SlotSpec struct {
	Slot   int `json:"slot"`
	Depth  int `json:"depth"`
	Slices int `json:"slices"`
}

// Connection is one emitter target: a section id and one of its slots.
type Connection struct {
	Target int `json:"target"`
	Slot   int `json:"slot"`
}

// OutputChannel declares a named output.
type OutputChannel struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// OutputBinding routes a section's best match to an output channel.
type OutputBinding struct {
	Section int `json:"section"`
	Output  int `json:"output"`
}

// FanInTable lists, for a root node, how many views each ancestor must
// observe before it may merge. The root lists itself with count 1.
//
// Tables are produced ahead of time by whoever authors the graph; the
// compiler checks them against the wiring but never generates them.
type FanInTable struct {
	Root   int          `json:"root"`
	Counts []FanInCount `json:"counts"`
}

// FanInCount is one row of a FanInTable.
type FanInCount struct {
	ID    int `json:"id"`
	Count int `json:"count"`
}

// Input returns the input channel with the given id.
func (g *GraphSpec) Input(id int) (*InputSpec, bool) {
	for i := range g.Inputs {
		if g.Inputs[i].ID == id {
			return &g.Inputs[i], true
		}
	}
	return nil, false
}

// Section returns the section with the given id.
func (g *GraphSpec) Section(id int) (*SectionSpec, bool) {
	for i := range g.Sections {
		if g.Sections[i].ID == id {
			return &g.Sections[i], true
		}
	}
	return nil, false
}

// FanInFor returns the fan-in table rooted at id.
func (g *GraphSpec) FanInFor(id int) (*FanInTable, bool) {
	for i := range g.FanIn {
		if g.FanIn[i].Root == id {
			return &g.FanIn[i], true
		}
	}
	return nil, false
}

// NodeIDs returns every input and section id in ascending order.
func (g *GraphSpec) NodeIDs() []int {
	ids := make([]int, 0, len(g.Inputs)+len(g.Sections))
	for _, in := range g.Inputs {
		ids = append(ids, in.ID)
	}
	for _, s := range g.Sections {
		ids = append(ids, s.ID)
	}
	sort.Ints(ids)
	return ids
}

// ToIR converts the description into an IRObject for canonical encoding.
func (g *GraphSpec) ToIR() IRObject {
	inputs := make(IRArray, len(g.Inputs))
	for i, in := range g.Inputs {
		inputs[i] = IRObject{
			"id":          IRInt(in.ID),
			"name":        IRString(in.Name),
			"dim":         IRInt(in.Dim),
			"connections": connectionsToIR(in.Connections),
		}
	}

	sections := make(IRArray, len(g.Sections))
	for i, s := range g.Sections {
		slots := make(IRArray, len(s.Slots))
		for j, sl := range s.Slots {
			slots[j] = IRObject{
				"slot":   IRInt(sl.Slot),
				"depth":  IRInt(sl.Depth),
				"slices": IRInt(sl.Slices),
			}
		}
		sections[i] = IRObject{
			"id":          IRInt(s.ID),
			"name":        IRString(s.Name),
			"dim":         IRInt(s.Dim),
			"x":           IRInt(s.X),
			"y":           IRInt(s.Y),
			"rows":        IRInt(s.Rows),
			"cols":        IRInt(s.Cols),
			"train_iters": IRInt(s.TrainIters),
			"mode":        IRString(s.Mode),
			"slots":       slots,
			"connections": connectionsToIR(s.Connections),
		}
	}

	outputs := make(IRArray, len(g.Outputs))
	for i, o := range g.Outputs {
		outputs[i] = IRObject{"id": IRInt(o.ID), "name": IRString(o.Name)}
	}

	bindings := make(IRArray, len(g.Bindings))
	for i, b := range g.Bindings {
		bindings[i] = IRObject{"section": IRInt(b.Section), "output": IRInt(b.Output)}
	}

	fanIn := make(IRArray, len(g.FanIn))
	for i, f := range g.FanIn {
		counts := make(IRArray, len(f.Counts))
		for j, c := range f.Counts {
			counts[j] = IRObject{"id": IRInt(c.ID), "count": IRInt(c.Count)}
		}
		fanIn[i] = IRObject{"root": IRInt(f.Root), "counts": counts}
	}

	return IRObject{
		"name":     IRString(g.Name),
		"inputs":   inputs,
		"sections": sections,
		"order":    Ints(g.Order),
		"outputs":  outputs,
		"bindings": bindings,
		"fan_in":   fanIn,
	}
}

func connectionsToIR(conns []Connection) IRArray {
	arr := make(IRArray, len(conns))
	for i, c := range conns {
		arr[i] = IRObject{"target": IRInt(c.Target), "slot": IRInt(c.Slot)}
	}
	return arr
}
