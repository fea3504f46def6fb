package engine

// ExpansionGuard records which nodes a resolve has already expanded.
//
// Expansion moves the wavefront strictly toward the leaves, so in an
// acyclic graph no expanded node can receive a new view. A view pushed to
// an expanded node means the wiring is cyclic or the fan-in table is
// wrong, and the resolve fails instead of looping.
//
// The guard is owned by the resolve in progress and is not safe for
// concurrent use; Resolve is not reentrant.
type ExpansionGuard struct {
	expanded map[int]bool // node index -> expanded this call
}

// NewExpansionGuard creates an empty guard.
func NewExpansionGuard() *ExpansionGuard {
	return &ExpansionGuard{expanded: make(map[int]bool)}
}

// WouldReactivate reports whether activating node would revisit an
// expanded node.
func (g *ExpansionGuard) WouldReactivate(node int) bool {
	return g.expanded[node]
}

// Record marks node as expanded.
func (g *ExpansionGuard) Record(node int) {
	g.expanded[node] = true
}

// Clear forgets all history.
func (g *ExpansionGuard) Clear() {
	clear(g.expanded)
}

// Size returns the number of expanded nodes.
func (g *ExpansionGuard) Size() int {
	return len(g.expanded)
}
