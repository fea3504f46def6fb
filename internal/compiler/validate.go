package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/cortex/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidSize = "E100" // non-positive dim, rows, cols, depth, slices or train_iters

	ErrDuplicateID       = "E101" // two nodes or outputs share an id
	ErrUnknownTarget     = "E102" // connection to an unknown section or slot
	ErrSlotFeed          = "E103" // slot fed by zero or several sources
	ErrDimMismatch       = "E104" // section dim differs from the sum of its slot widths
	ErrOrderMembership   = "E105" // order names an unknown id, repeats one, or misses a section
	ErrOrderTopology     = "E106" // order runs a section before one of its sources
	ErrUnknownBinding    = "E107" // binding references an unknown section or output
	ErrFanInUnknownNode  = "E108" // fan-in table references an unknown id
	ErrFanInMissingRoot  = "E109" // fan-in table does not list its root with count 1
	ErrWiringCycle       = "E110" // sections feed back into themselves
	ErrFanInCountInvalid = "E111" // fan-in count disagrees with the wiring
)

// ValidationError represents a graph validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled graph against the wiring rules.
// Returns all errors found (does not fail-fast). Fan-in counts are only
// checked once the wiring itself is sound.
func Validate(g *ir.GraphSpec) []ValidationError {
	if g == nil {
		return []ValidationError{{Field: "graph", Message: "graph is nil", Code: ErrInvalidSize}}
	}

	v := &validator{g: g}
	v.ids()
	v.sizes()
	v.wiring()
	v.order()
	v.bindings()
	v.fanInRefs()

	wiringOK := len(v.errs) == 0
	for _, c := range FindCycles(g) {
		v.add(ErrWiringCycle, "sections", "wiring cycle: %s", c)
		wiringOK = false
	}
	if wiringOK {
		v.fanInCounts()
	}
	return v.errs
}

type validator struct {
	g    *ir.GraphSpec
	errs []ValidationError
}

func (v *validator) add(code, fieldPath, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   fieldPath,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) ids() {
	seen := make(map[int]string)
	check := func(id int, name, fieldPath string) {
		if prev, dup := seen[id]; dup {
			v.add(ErrDuplicateID, fieldPath, "id %d of %q already used by %q", id, name, prev)
			return
		}
		seen[id] = name
	}
	for i, in := range v.g.Inputs {
		check(in.ID, in.Name, fmt.Sprintf("inputs[%d].id", i))
	}
	for i, s := range v.g.Sections {
		check(s.ID, s.Name, fmt.Sprintf("sections[%d].id", i))
	}

	outs := make(map[int]bool)
	for i, o := range v.g.Outputs {
		if outs[o.ID] {
			v.add(ErrDuplicateID, fmt.Sprintf("outputs[%d].id", i), "duplicate output id %d", o.ID)
		}
		outs[o.ID] = true
	}
}

func (v *validator) sizes() {
	for i, in := range v.g.Inputs {
		if in.Dim < 1 {
			v.add(ErrInvalidSize, fmt.Sprintf("inputs[%d].dim", i), "input %q has dim %d", in.Name, in.Dim)
		}
	}
	for i, s := range v.g.Sections {
		prefix := fmt.Sprintf("sections[%d]", i)
		for _, f := range []struct {
			name string
			val  int
			min  int
		}{
			{"dim", s.Dim, 1},
			{"rows", s.Rows, 1},
			{"cols", s.Cols, 1},
			{"train_iters", s.TrainIters, 2},
		} {
			if f.val < f.min {
				v.add(ErrInvalidSize, prefix+"."+f.name, "section %q has %s %d, need at least %d", s.Name, f.name, f.val, f.min)
			}
		}
		for j, sl := range s.Slots {
			if sl.Depth < 1 || sl.Slices < 1 {
				v.add(ErrInvalidSize, fmt.Sprintf("%s.slots[%d]", prefix, j),
					"slot %d of %q has depth %d and slices %d", sl.Slot, s.Name, sl.Depth, sl.Slices)
			}
		}
	}
}

// wiring checks connection targets, slot feeds and section widths.
func (v *validator) wiring() {
	feeds := make(map[[2]int][]int) // (section, slot) -> source ids
	connect := func(src int, conns []ir.Connection, prefix string) {
		for j, c := range conns {
			target, ok := v.g.Section(c.Target)
			if !ok {
				v.add(ErrUnknownTarget, fmt.Sprintf("%s.connections[%d]", prefix, j), "node %d connects to unknown section %d", src, c.Target)
				continue
			}
			if !hasSlot(target, c.Slot) {
				v.add(ErrUnknownTarget, fmt.Sprintf("%s.connections[%d]", prefix, j), "section %q has no slot %d", target.Name, c.Slot)
				continue
			}
			key := [2]int{c.Target, c.Slot}
			feeds[key] = append(feeds[key], src)
		}
	}
	for i, in := range v.g.Inputs {
		connect(in.ID, in.Connections, fmt.Sprintf("inputs[%d]", i))
	}
	for i, s := range v.g.Sections {
		connect(s.ID, s.Connections, fmt.Sprintf("sections[%d]", i))
	}

	for i, s := range v.g.Sections {
		width := 0
		widthKnown := true
		for j, sl := range s.Slots {
			srcs := feeds[[2]int{s.ID, sl.Slot}]
			if len(srcs) != 1 {
				v.add(ErrSlotFeed, fmt.Sprintf("sections[%d].slots[%d]", i, j), "slot %d of %q is fed by %d sources, want 1", sl.Slot, s.Name, len(srcs))
				widthKnown = false
				continue
			}
			w, ok := v.sourceWidth(srcs[0])
			if !ok {
				widthKnown = false
				continue
			}
			width += sl.Depth * w
		}
		if widthKnown && width != s.Dim {
			v.add(ErrDimMismatch, fmt.Sprintf("sections[%d].dim", i), "section %q has dim %d but its slots deliver %d", s.Name, s.Dim, width)
		}
	}
}

// sourceWidth is the length of one vector a node emits: an input's dim, or
// a section's normalized (row, col) pair.
func (v *validator) sourceWidth(id int) (int, bool) {
	if in, ok := v.g.Input(id); ok {
		return in.Dim, true
	}
	if _, ok := v.g.Section(id); ok {
		return 2, true
	}
	return 0, false
}

func (v *validator) order() {
	pos := make(map[int]int)
	for i, id := range v.g.Order {
		if _, ok := v.g.Section(id); !ok {
			v.add(ErrOrderMembership, fmt.Sprintf("order[%d]", i), "id %d is not a section", id)
			continue
		}
		if _, dup := pos[id]; dup {
			v.add(ErrOrderMembership, fmt.Sprintf("order[%d]", i), "section %d listed twice", id)
			continue
		}
		pos[id] = i
	}
	for _, s := range v.g.Sections {
		if _, ok := pos[s.ID]; !ok {
			v.add(ErrOrderMembership, "order", "section %q is missing from the order", s.Name)
		}
	}

	for _, s := range v.g.Sections {
		from, ok := pos[s.ID]
		if !ok {
			continue
		}
		for _, c := range s.Connections {
			to, ok := pos[c.Target]
			if ok && to <= from {
				target, _ := v.g.Section(c.Target)
				v.add(ErrOrderTopology, "order", "section %q runs before its source %q", target.Name, s.Name)
			}
		}
	}
}

func (v *validator) bindings() {
	for i, b := range v.g.Bindings {
		if _, ok := v.g.Section(b.Section); !ok {
			v.add(ErrUnknownBinding, fmt.Sprintf("bindings[%d].section", i), "unknown section %d", b.Section)
		}
		found := false
		for _, o := range v.g.Outputs {
			if o.ID == b.Output {
				found = true
				break
			}
		}
		if !found {
			v.add(ErrUnknownBinding, fmt.Sprintf("bindings[%d].output", i), "unknown output %d", b.Output)
		}
	}
}

func (v *validator) known(id int) bool {
	if _, ok := v.g.Input(id); ok {
		return true
	}
	_, ok := v.g.Section(id)
	return ok
}

func (v *validator) fanInRefs() {
	roots := make(map[int]bool)
	for i, t := range v.g.FanIn {
		prefix := fmt.Sprintf("fan_in[%d]", i)
		if _, ok := v.g.Section(t.Root); !ok {
			v.add(ErrFanInUnknownNode, prefix+".root", "root %d is not a section", t.Root)
		}
		if roots[t.Root] {
			v.add(ErrDuplicateID, prefix+".root", "second fan-in table for root %d", t.Root)
		}
		roots[t.Root] = true

		self := false
		for j, c := range t.Counts {
			if !v.known(c.ID) {
				v.add(ErrFanInUnknownNode, fmt.Sprintf("%s.counts[%d]", prefix, j), "unknown node %d", c.ID)
			}
			if c.ID == t.Root && c.Count == 1 {
				self = true
			}
		}
		if !self {
			v.add(ErrFanInMissingRoot, prefix, "root %d must list itself with count 1", t.Root)
		}
	}
}

// fanInCounts compares every table with the counts implied by the wiring.
// Each section upstream of the root expands exactly once, handing one view
// to the source of each of its slots, so a node's count is the number of
// such slots it feeds.
func (v *validator) fanInCounts() {
	for i, t := range v.g.FanIn {
		want := ExpectedFanIn(v.g, t.Root)
		got := make(map[int]int, len(t.Counts))
		for _, c := range t.Counts {
			got[c.ID] += c.Count
		}

		ids := make([]int, 0, len(want)+len(got))
		for id := range want {
			ids = append(ids, id)
		}
		for id := range got {
			if _, ok := want[id]; !ok {
				ids = append(ids, id)
			}
		}
		sort.Ints(ids)

		for _, id := range ids {
			if got[id] != want[id] {
				v.add(ErrFanInCountInvalid, fmt.Sprintf("fan_in[%d]", i),
					"node %d under root %d: count %d, wiring implies %d", id, t.Root, got[id], want[id])
			}
		}
	}
}

// ExpectedFanIn derives the fan-in table for root from the wiring of an
// acyclic graph. The result maps node id to count and includes the root.
func ExpectedFanIn(g *ir.GraphSpec, root int) map[int]int {
	// sources[section] lists the feeding node of each of its slots.
	sources := make(map[int][]int)
	add := func(src int, conns []ir.Connection) {
		for _, c := range conns {
			sources[c.Target] = append(sources[c.Target], src)
		}
	}
	for _, in := range g.Inputs {
		add(in.ID, in.Connections)
	}
	for _, s := range g.Sections {
		add(s.ID, s.Connections)
	}

	counts := map[int]int{root: 1}
	expanded := map[int]bool{}
	queue := []int{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if expanded[id] {
			continue
		}
		if _, ok := g.Section(id); !ok {
			continue
		}
		expanded[id] = true
		for _, src := range sources[id] {
			counts[src]++
			queue = append(queue, src)
		}
	}
	return counts
}

func hasSlot(s *ir.SectionSpec, slot int) bool {
	for _, sl := range s.Slots {
		if sl.Slot == slot {
			return true
		}
	}
	return false
}
