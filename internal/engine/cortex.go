package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/roach88/cortex/internal/intqueue"
	"github.com/roach88/cortex/internal/ir"
	"github.com/roach88/cortex/internal/som"
)

// Kind tags a node as an input channel or a section.
type Kind int

const (
	// KindInput nodes are leaves fed by Process.
	KindInput Kind = iota + 1
	// KindSection nodes own a vector map and a receptor.
	KindSection
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindSection:
		return "section"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// coordDim is the dimension of the normalized best-match coordinate a
// section propagates downstream.
const coordDim = 2

// target is one emitter connection: node index and receptor slot index.
type target struct {
	node int
	slot int
}

// slot is one receptor slot of a section.
type slot struct {
	id        int
	queue     *intqueue.Queue
	depth     int
	source    int // node index feeding this slot
	sourceDim int // coordDim for sections, channel dim for inputs
}

// dim returns the dimension of the slot's abstraction.
func (s *slot) dim() int {
	return s.depth * s.sourceDim
}

// node is an input channel or a section. Section-only fields are zero for
// inputs.
type node struct {
	id      int
	name    string
	kind    Kind
	dim     int
	emitter []target

	x, y     int
	mode     ir.NodeMode
	vmap     *som.Map
	receptor []slot
	outputs  []int // output table positions this section publishes to
}

func (n *node) label() string {
	return fmt.Sprintf("%s#%d", n.name, n.id)
}

// Cortex is a built graph: vector maps, integration queues and wiring.
//
// A Cortex is not safe for concurrent use. Use a Runner to share one
// between goroutines.
type Cortex struct {
	spec    ir.GraphSpec
	nodes   []node
	index   map[int]int // node id -> node index
	inputs  []int       // input node indices in declaration order
	order   []int       // section node indices in execution order
	outputs []ir.OutputChannel

	clock     *Clock
	wave      *waveTable
	maxPasses int
	method    som.Method
	destroyed bool
}

// Option configures a Cortex.
type Option func(*Cortex)

// WithMaxPasses sets the resolver pass quota.
//
// Default: DefaultMaxPasses. Use WithMaxPasses(1) in tests to exercise the
// quota error.
func WithMaxPasses(n int) Option {
	return func(c *Cortex) {
		c.maxPasses = n
	}
}

// WithBMUMethod selects the best-match policy sections learn with.
// Default: som.MethodCentroid.
func WithBMUMethod(m som.Method) Option {
	return func(c *Cortex) {
		c.method = m
	}
}

// WithClock sets the tick clock, e.g. to continue numbering from a
// recorded session.
func WithClock(clock *Clock) Option {
	return func(c *Cortex) {
		c.clock = clock
	}
}

// Build constructs a Cortex from a graph description. Every section map is
// randomized from rng, in section declaration order.
//
// Unknown ids, slots without exactly one source, and dimension mismatches
// are returned as *RuntimeError configuration faults.
func Build(spec *ir.GraphSpec, rng *rand.Rand, opts ...Option) (*Cortex, error) {
	if spec == nil {
		return nil, newError(ErrCodeConfigInvalid, "", "nil graph description")
	}
	if rng == nil {
		return nil, newError(ErrCodeConfigInvalid, "", "nil random source")
	}

	c := &Cortex{
		spec:      *spec,
		index:     make(map[int]int),
		outputs:   append([]ir.OutputChannel(nil), spec.Outputs...),
		clock:     NewClock(),
		maxPasses: DefaultMaxPasses,
		method:    som.MethodCentroid,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.declareNodes(spec, rng); err != nil {
		return nil, err
	}
	if err := c.wireConnections(spec); err != nil {
		return nil, err
	}
	if err := c.checkReceptors(); err != nil {
		return nil, err
	}
	if err := c.resolveOrder(spec); err != nil {
		return nil, err
	}
	if err := c.bindOutputs(spec); err != nil {
		return nil, err
	}
	if err := c.checkFanIn(spec); err != nil {
		return nil, err
	}

	c.wave = newWaveTable(len(c.nodes))

	slog.Debug("cortex built",
		"graph", spec.Name,
		"inputs", len(c.inputs),
		"sections", len(c.order),
		"outputs", len(c.outputs),
	)
	return c, nil
}

func (c *Cortex) addNode(n node) error {
	if _, dup := c.index[n.id]; dup {
		return newError(ErrCodeConfigInvalid, n.label(), "duplicate node id %d", n.id)
	}
	c.index[n.id] = len(c.nodes)
	c.nodes = append(c.nodes, n)
	return nil
}

func (c *Cortex) declareNodes(spec *ir.GraphSpec, rng *rand.Rand) error {
	for _, in := range spec.Inputs {
		if in.Dim <= 0 {
			return newError(ErrCodeConfigInvalid, in.Name, "input dimension must be positive, got %d", in.Dim)
		}
		if err := c.addNode(node{id: in.ID, name: in.Name, kind: KindInput, dim: in.Dim}); err != nil {
			return err
		}
		c.inputs = append(c.inputs, len(c.nodes)-1)
	}

	for _, s := range spec.Sections {
		vmap, err := som.New(som.Desc{
			Dim:        s.Dim,
			TrainIters: s.TrainIters,
			Rows:       s.Rows,
			Cols:       s.Cols,
			Method:     c.method,
		}, rng)
		if err != nil {
			return &RuntimeError{Code: ErrCodeConfigInvalid, Message: err.Error(), Node: fmt.Sprintf("%s#%d", s.Name, s.ID)}
		}

		slots := append([]ir.SlotSpec(nil), s.Slots...)
		sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })
		receptor := make([]slot, len(slots))
		for i, sl := range slots {
			q, err := intqueue.New(sl.Depth, max(sl.Slices, 1))
			if err != nil {
				return newError(ErrCodeConfigInvalid, fmt.Sprintf("%s#%d", s.Name, s.ID), "slot %d: %v", sl.Slot, err)
			}
			receptor[i] = slot{id: sl.Slot, queue: q, depth: sl.Depth, source: -1}
		}

		mode := s.Mode
		if mode == "" {
			mode = ir.ModePropagate
		}
		if err := c.addNode(node{
			id:       s.ID,
			name:     s.Name,
			kind:     KindSection,
			dim:      s.Dim,
			x:        s.X,
			y:        s.Y,
			mode:     mode,
			vmap:     vmap,
			receptor: receptor,
		}); err != nil {
			return err
		}
	}
	return nil
}

// slotIndex maps a declared slot id to its receptor position.
func (n *node) slotIndex(id int) (int, bool) {
	for i := range n.receptor {
		if n.receptor[i].id == id {
			return i, true
		}
	}
	return 0, false
}

func (c *Cortex) wireConnections(spec *ir.GraphSpec) error {
	wire := func(srcID int, conns []ir.Connection) error {
		src := c.index[srcID]
		for _, conn := range conns {
			ti, ok := c.index[conn.Target]
			if !ok {
				return newError(ErrCodeUnknownNode, c.nodes[src].label(), "connection to unknown node %d", conn.Target)
			}
			tn := &c.nodes[ti]
			if tn.kind != KindSection {
				return newError(ErrCodeConfigInvalid, c.nodes[src].label(), "connection target %s is not a section", tn.label())
			}
			si, ok := tn.slotIndex(conn.Slot)
			if !ok {
				return newError(ErrCodeUnknownNode, tn.label(), "connection from %s to unknown slot %d", c.nodes[src].label(), conn.Slot)
			}
			sl := &tn.receptor[si]
			if sl.source >= 0 {
				return newError(ErrCodeConfigInvalid, tn.label(), "slot %d fed by both %s and %s",
					conn.Slot, c.nodes[sl.source].label(), c.nodes[src].label())
			}
			sl.source = src
			if c.nodes[src].kind == KindSection {
				sl.sourceDim = coordDim
			} else {
				sl.sourceDim = c.nodes[src].dim
			}
			c.nodes[src].emitter = append(c.nodes[src].emitter, target{node: ti, slot: si})
		}
		return nil
	}

	for _, in := range spec.Inputs {
		if err := wire(in.ID, in.Connections); err != nil {
			return err
		}
	}
	for _, s := range spec.Sections {
		if err := wire(s.ID, s.Connections); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cortex) checkReceptors() error {
	for i := range c.nodes {
		n := &c.nodes[i]
		if n.kind != KindSection {
			continue
		}
		if len(n.receptor) == 0 {
			return newError(ErrCodeConfigInvalid, n.label(), "section has no receptor slots")
		}
		total := 0
		for _, sl := range n.receptor {
			if sl.source < 0 {
				return newError(ErrCodeConfigInvalid, n.label(), "slot %d has no source", sl.id)
			}
			total += sl.dim()
		}
		if total != n.dim {
			return &RuntimeError{
				Code:    ErrCodeDimensionMismatch,
				Message: fmt.Sprintf("section dimension %d does not match receptor dimension %d", n.dim, total),
				Node:    n.label(),
				Details: map[string]string{"declared": fmt.Sprint(n.dim), "receptor": fmt.Sprint(total)},
			}
		}
	}
	return nil
}

func (c *Cortex) resolveOrder(spec *ir.GraphSpec) error {
	seen := make(map[int]bool, len(spec.Order))
	for _, id := range spec.Order {
		idx, ok := c.index[id]
		if !ok {
			return newError(ErrCodeUnknownNode, "", "execution order references unknown node %d", id)
		}
		if c.nodes[idx].kind != KindSection {
			return newError(ErrCodeConfigInvalid, c.nodes[idx].label(), "execution order may only list sections")
		}
		if seen[id] {
			return newError(ErrCodeConfigInvalid, c.nodes[idx].label(), "section listed twice in execution order")
		}
		seen[id] = true
		c.order = append(c.order, idx)
	}
	return nil
}

func (c *Cortex) bindOutputs(spec *ir.GraphSpec) error {
	pos := make(map[int]int, len(c.outputs))
	for i, o := range c.outputs {
		if _, dup := pos[o.ID]; dup {
			return newError(ErrCodeConfigInvalid, "", "duplicate output channel id %d", o.ID)
		}
		pos[o.ID] = i
	}
	for _, b := range spec.Bindings {
		idx, ok := c.index[b.Section]
		if !ok || c.nodes[idx].kind != KindSection {
			return newError(ErrCodeUnknownNode, "", "output binding references unknown section %d", b.Section)
		}
		p, ok := pos[b.Output]
		if !ok {
			return newError(ErrCodeUnknownNode, c.nodes[idx].label(), "binding to unknown output channel %d", b.Output)
		}
		c.nodes[idx].outputs = append(c.nodes[idx].outputs, p)
	}
	return nil
}

func (c *Cortex) checkFanIn(spec *ir.GraphSpec) error {
	for _, f := range spec.FanIn {
		if _, ok := c.index[f.Root]; !ok {
			return newError(ErrCodeUnknownNode, "", "fan-in table for unknown node %d", f.Root)
		}
		for _, cnt := range f.Counts {
			if _, ok := c.index[cnt.ID]; !ok {
				return newError(ErrCodeUnknownNode, "", "fan-in table for %d lists unknown node %d", f.Root, cnt.ID)
			}
			if cnt.Count <= 0 {
				return newError(ErrCodeConfigInvalid, "", "fan-in table for %d: count for %d must be positive", f.Root, cnt.ID)
			}
		}
	}
	return nil
}

// Spec returns the description the Cortex was built from.
func (c *Cortex) Spec() *ir.GraphSpec {
	return &c.spec
}

// Tick returns the number of completed Process calls.
func (c *Cortex) Tick() int64 {
	return c.clock.Current()
}

// Map returns the vector map of the section with the given id.
func (c *Cortex) Map(sectionID int) (*som.Map, bool) {
	idx, ok := c.index[sectionID]
	if !ok || c.destroyed || c.nodes[idx].kind != KindSection {
		return nil, false
	}
	return c.nodes[idx].vmap, true
}

// Trained reports whether every section has reached Classifying mode.
func (c *Cortex) Trained() bool {
	if c.destroyed {
		return false
	}
	for _, idx := range c.order {
		if c.nodes[idx].vmap.Mode() != som.Classifying {
			return false
		}
	}
	return true
}

// Locate maps a global grid point to the section covering it and the
// local coordinates inside that section. Sections are searched in
// declaration order; ok is false if no section covers the point.
func (c *Cortex) Locate(row, col int) (sectionID, localRow, localCol int, ok bool) {
	idx, lr, lc, ok := c.locate(row, col)
	if !ok {
		return 0, 0, 0, false
	}
	return c.nodes[idx].id, lr, lc, true
}

func (c *Cortex) locate(row, col int) (idx, localRow, localCol int, ok bool) {
	if c.destroyed {
		return 0, 0, 0, false
	}
	for i := range c.nodes {
		n := &c.nodes[i]
		if n.kind != KindSection {
			continue
		}
		if row >= n.y && row < n.y+n.vmap.Rows() && col >= n.x && col < n.x+n.vmap.Cols() {
			return i, row - n.y, col - n.x, true
		}
	}
	return 0, 0, 0, false
}

// Destroy releases the maps, queues and scratch state. Later calls return
// ErrDestroyed.
func (c *Cortex) Destroy() {
	for i := range c.nodes {
		c.nodes[i].vmap = nil
		c.nodes[i].receptor = nil
		c.nodes[i].emitter = nil
	}
	c.wave = nil
	c.destroyed = true
}
